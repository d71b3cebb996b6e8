package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	key, err := store.Write(context.Background(), "jobs/abc/image_1.png", "image/png", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "jobs/abc/image_1.png", key)

	data, err := os.ReadFile(filepath.Join(dir, "jobs", "abc", "image_1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	back, err := store.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), back)
}

func TestFileStoreReadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "absent/key.png")
	assert.Error(t, err)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "../escape.txt", "text/plain", []byte("x"))
	assert.Error(t, err)

	_, err = store.Write(context.Background(), "   ", "text/plain", []byte("x"))
	assert.Error(t, err)
}

func TestSanitizeKey(t *testing.T) {
	key, err := sanitizeKey("/leading/slash.png")
	require.NoError(t, err)
	assert.Equal(t, "leading/slash.png", key)

	key, err = sanitizeKey("./dotted/key.mp4")
	require.NoError(t, err)
	assert.Equal(t, "dotted/key.mp4", key)

	_, err = sanitizeKey("../../etc/passwd")
	assert.Error(t, err)
}
