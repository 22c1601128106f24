//go:build !linux

package backend

import "errors"

func freeSpace(path string) (uint64, error) {
	return 0, errors.New("free space lookup not supported on this platform")
}
