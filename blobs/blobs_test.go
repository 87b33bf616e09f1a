package blobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	s, err := Open("gs://models/run1/maps/")
	require.NoError(t, err)
	assert.Equal(t, &GCSStore{Bucket: "models", Prefix: "run1/maps"}, s)
	assert.Equal(t, "gs://models/run1/maps/layer1.svg", s.URL("layer1.svg"))

	s, err = Open("gs://models")
	require.NoError(t, err)
	assert.Equal(t, "gs://models/out.svg", s.URL("out.svg"))

	_, err = Open("gs://")
	assert.Error(t, err)
	_, err = Open("")
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err = Open(dir)
	require.NoError(t, err)
	assert.Equal(t, &DirStore{Dir: dir}, s)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDirStorePut(t *testing.T) {
	dir := t.TempDir()
	s := &DirStore{Dir: dir}
	n, err := s.Put(context.Background(), "test.svg", strings.NewReader("<svg/>"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	data, err := os.ReadFile(filepath.Join(dir, "test.svg"))
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))

	_, err = s.Put(context.Background(), "test.svg", strings.NewReader("<svg></svg>"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "test.svg"))
	require.NoError(t, err)
	assert.Equal(t, "<svg></svg>", string(data))
}

func TestDirStorePutError(t *testing.T) {
	dir := t.TempDir()
	s := &DirStore{Dir: dir}
	_, err := s.Put(context.Background(), "bad.svg", iotest.ErrReader(errors.New("read failed")))
	assert.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file should be removed")
}
