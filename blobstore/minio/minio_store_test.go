package minio

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/blobstore"
	"github.com/hupe1980/navgraph/blobstore/storetest"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestOpenValidates(t *testing.T) {
	_, err := Open(t.Context(), Config{Bucket: "b"})
	assert.ErrorContains(t, err, "endpoint and bucket")
}

func TestKey(t *testing.T) {
	s := NewStore(nil, "b", "/maps/")
	assert.Equal(t, "maps/0/12.mesh", s.key("0/12.mesh"))
	assert.Equal(t, "0/12.mesh", NewStore(nil, "b", "").key("0/12.mesh"))
}

// Needs a running MinIO; skipped otherwise.
func TestMinioStore_Integration(t *testing.T) {
	cfg := Config{
		Endpoint:     envOr("MINIO_ENDPOINT", "localhost:9000"),
		Bucket:       "test-navgraph",
		AccessKey:    envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:    envOr("MINIO_SECRET_KEY", "minioadmin"),
		CreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	base, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	n := 0
	storetest.Run(t, func(t *testing.T) blobstore.Store {
		n++
		s := NewStore(base.client, cfg.Bucket, fmt.Sprintf("run-%d-%d", time.Now().UnixNano(), n))
		t.Cleanup(func() {
			names, _ := s.List(context.Background(), "")
			for _, name := range names {
				_ = s.Delete(context.Background(), name)
			}
		})
		return s
	})
	require.NotNil(t, base)
}
