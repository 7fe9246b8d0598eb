package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSizeSuffix(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"100B", 100},
		{"5M", 5 * MiB},
		{"1G", 1024 * MiB},
		{"4K", 4 * KiB},
	}
	for _, c := range cases {
		got, err := ParseByteSizeSuffix(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseByteSizeSuffixInvalid(t *testing.T) {
	_, err := ParseByteSizeSuffix("abc")
	assert.Error(t, err)
}
