// Package backend provides the standard openers for the aio driver: a
// local filesystem and an in-memory object store.
package backend

import (
	"path/filepath"
	"strings"

	aio "github.com/ehrlich-b/go-aio"
)

// SourcePath resolves where an operation reads from. READ and UPDATE
// read the item back from the source path when set, else from the
// destination path. An item name already under the directory is used as
// is.
func SourcePath(op *aio.Operation) string {
	dir := op.SrcPath()
	if dir == "" && (op.Type() == aio.OpRead || op.Type() == aio.OpUpdate) {
		dir = op.DstPath()
	}
	return under(dir, op.Item().Name())
}

// DestinationPath resolves where an operation writes to
func DestinationPath(op *aio.Operation) string {
	return under(op.DstPath(), op.Item().Name())
}

// generatesContent reports whether the operation writes generated content
// instead of reading a source.
func generatesContent(op *aio.Operation) bool {
	return op.SrcPath() == "" && (op.Type() == aio.OpCreate || op.Type() == aio.OpCopy)
}

func under(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasPrefix(name, dir) {
		return name
	}
	return filepath.Join(dir, name)
}
