// Package storetest provides a conformance suite for blobstore.Store
// implementations.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/blobstore"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(t.Context(), "0/1.mesh")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		data := bytes.Repeat([]byte("navgraph"), 512)
		require.NoError(t, s.Put(t.Context(), "0/1.mesh", data))

		got, err := s.Get(t.Context(), "0/1.mesh")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(t.Context(), "a", []byte("one")))
		require.NoError(t, s.Put(t.Context(), "a", []byte("two")))
		got, err := s.Get(t.Context(), "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(t.Context(), "empty", nil))
		got, err := s.Get(t.Context(), "empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(t.Context(), "gone", []byte{1}))
		require.NoError(t, s.Delete(t.Context(), "gone"))
		_, err := s.Get(t.Context(), "gone")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		assert.NoError(t, s.Delete(t.Context(), "gone"), "deleting twice is fine")
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"1/200.mesh", "0/3.mesh", "0/1.mesh", "frontier"} {
			require.NoError(t, s.Put(t.Context(), name, []byte(name)))
		}
		all, err := s.List(t.Context(), "")
		require.NoError(t, err)
		assert.Equal(t, []string{"0/1.mesh", "0/3.mesh", "1/200.mesh", "frontier"}, all)

		shard, err := s.List(t.Context(), "0/")
		require.NoError(t, err)
		assert.Equal(t, []string{"0/1.mesh", "0/3.mesh"}, shard)
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("c/%d", i)
				assert.NoError(t, s.Put(context.Background(), name, []byte(name)))
			}()
		}
		wg.Wait()
		names, err := s.List(t.Context(), "c/")
		require.NoError(t, err)
		assert.Len(t, names, 8)
	})

	t.Run("Canceled", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		assert.Error(t, s.Put(ctx, "x", []byte{1}))
	})
}
