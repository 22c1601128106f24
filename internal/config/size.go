package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Size is a byte count that decodes from plain numbers or human sizes
// such as "64M", "1GiB" or "512k". Suffixes are binary.
type Size int64

// Int64 returns the size in bytes
func (s Size) Int64() int64 { return int64(s) }

func (s Size) String() string { return FormatSize(int64(s)) }

var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"TIB", 1 << 40}, {"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
	{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
	{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
	{"B", 1},
}

// ParseSize parses a size string like "64M", "1G", "512K" or "4096"
func ParseSize(s string) (Size, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(str, u.suffix) {
			multiplier = u.multiplier
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			break
		}
	}

	num, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if num < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	if num > (1<<63-1)/multiplier {
		return 0, fmt.Errorf("invalid size %q: overflows int64", s)
	}
	return Size(num * multiplier), nil
}

// FormatSize formats a byte count as a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}

var sizeType = reflect.TypeOf(Size(0))

// sizeHook decodes strings into Size
func sizeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != sizeType || f.Kind() != reflect.String {
			return data, nil
		}
		return ParseSize(reflect.ValueOf(data).String())
	}
}
