package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHost(t *testing.T) {
	assert.Equal(t, "upload.example.com", ExtractHost("https://upload.example.com/foo/bar"))
	assert.Equal(t, "upload.example.com", ExtractHost("http://upload.example.com:8080/x"))
	assert.Equal(t, "", ExtractHost("not-a-url"))
}

func TestDNSResolverSkipsIPLiterals(t *testing.T) {
	d := NewDNSResolver()
	ip, err := d.Resolve(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "", ip)
}
