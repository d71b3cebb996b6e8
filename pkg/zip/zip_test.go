package zip

import (
	stdzip "archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive(t *testing.T) {
	data, err := Archive([]Entry{
		{Filename: "image_1.png", MIME: "image/png", Data: []byte("one")},
		{Filename: "image_2.png", MIME: "image/png", Data: []byte("two")},
	})
	require.NoError(t, err)

	zr, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "one", string(payload))
	assert.Equal(t, "image_1.png", zr.File[0].Name)
}

func TestArchiveDisambiguatesDuplicates(t *testing.T) {
	data, err := Archive([]Entry{
		{Filename: "asset.mp3", Data: []byte("a")},
		{Filename: "asset.mp3", Data: []byte("b")},
	})
	require.NoError(t, err)

	zr, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.NotEqual(t, zr.File[0].Name, zr.File[1].Name)
}

func TestArchiveEmpty(t *testing.T) {
	data, err := Archive(nil)
	require.NoError(t, err)

	zr, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}
