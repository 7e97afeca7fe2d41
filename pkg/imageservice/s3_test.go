package imageservice

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSize_PrefersStagedFileOverCatalogRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("four"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	// The file's real size wins even when the record disagrees or is zero.
	size, ok := payloadSize(f, 0)
	require.True(t, ok)
	assert.Equal(t, int64(4), size)

	size, ok = payloadSize(f, 99)
	require.True(t, ok)
	assert.Equal(t, int64(4), size)
}

func TestPayloadSize_FallsBackToCatalogRecord(t *testing.T) {
	size, ok := payloadSize(bytes.NewReader([]byte("xy")), 2)
	require.True(t, ok)
	assert.Equal(t, int64(2), size)

	_, ok = payloadSize(bytes.NewReader(nil), 0)
	assert.False(t, ok)
}
