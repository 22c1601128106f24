package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{"4096", 4096, false},
		{"512k", 512 << 10, false},
		{"64M", 64 << 20, false},
		{"1GiB", 1 << 30, false},
		{"2 MB", 2 << 20, false},
		{"1T", 1 << 40, false},
		{"10B", 10, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1K", 0, true},
		{"9999999999T", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KB", FormatSize(1024))
	assert.Equal(t, "1.5 MB", FormatSize(3<<19))
	assert.Equal(t, "2.0 GB", FormatSize(2<<30))
	assert.Equal(t, "64.0 MB", Size(64<<20).String())
}
