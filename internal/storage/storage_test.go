package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	a := ObjectKey("room 1", "../sales data.csv", []byte("x,y\n1,2\n"))
	b := ObjectKey("room 1", "../sales data.csv", []byte("x,y\n1,2\n"))
	c := ObjectKey("room 1", "../sales data.csv", []byte("x,y\n1,3\n"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "datasets/room_1/"))
	assert.True(t, strings.HasSuffix(a, "-sales_data.csv"))
	assert.NotContains(t, a, "..")
}

func TestLocalStorePut(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "datasets/r/abc-data.csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(url))

	data, err := os.ReadFile(url)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestGCSPublicURL(t *testing.T) {
	s := &GCSStore{bucket: "datasets"}
	assert.Equal(t, "https://storage.googleapis.com/datasets/a/b.csv", s.PublicURL("/a/b.csv"))

	s.publicBaseURL = "http://localhost:4443"
	assert.Equal(t, "http://localhost:4443/datasets/a/b.csv", s.PublicURL("a/b.csv"))
}
