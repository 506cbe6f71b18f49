package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/blobstore"
	"github.com/hupe1980/navgraph/blobstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) blobstore.Store {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStorePersists(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(t.Context(), "0/1.mesh", []byte("region")))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	data, err := s.Get(t.Context(), "0/1.mesh")
	require.NoError(t, err)
	assert.Equal(t, []byte("region"), data)
}

func TestStoreKeyPrefix(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.KeyPrefix = "mapA/"
	s, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(t.Context(), "frontier", []byte{1}))
	names, err := s.List(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"frontier"}, names)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
