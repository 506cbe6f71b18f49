package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hupe1980/navgraph"
	"github.com/hupe1980/navgraph/blobstore"
	badgerstore "github.com/hupe1980/navgraph/blobstore/badger"
	miniostore "github.com/hupe1980/navgraph/blobstore/minio"
	s3store "github.com/hupe1980/navgraph/blobstore/s3"
	"github.com/hupe1980/navgraph/regionstore"
)

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Mesh    MeshConfig    `toml:"mesh"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

type StorageConfig struct {
	Backend     string       `toml:"backend"` // local, memory, badger, s3, s3-ledger, minio
	Path        string       `toml:"path"`
	Compression string       `toml:"compression"` // none, lz4, zstd
	Verify      bool         `toml:"verify"`
	S3          S3Config     `toml:"s3"`
	MinIO       MinIOConfig  `toml:"minio"`
	Badger      BadgerConfig `toml:"badger"`
}

type S3Config struct {
	Bucket      string `toml:"bucket"`
	Prefix      string `toml:"prefix"`
	Region      string `toml:"region"`
	Endpoint    string `toml:"endpoint"`
	LedgerTable string `toml:"ledger_table"`
}

type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
	Create    bool   `toml:"create_bucket"`
}

type BadgerConfig struct {
	SyncWrites bool          `toml:"sync_writes"`
	GCInterval time.Duration `toml:"gc_interval"`
}

type MeshConfig struct {
	SaveInterval time.Duration `toml:"save_interval"`
	GrowBudget   time.Duration `toml:"grow_budget"`
	GrowRange    float32       `toml:"grow_range"`
	PageLimit    int           `toml:"page_limit"`
	PageIdle     time.Duration `toml:"page_idle"`
	IOWorkers    int           `toml:"io_workers"`
	IOLimit      int64         `toml:"io_limit"` // bytes per second, 0 is unlimited
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

type MetricsConfig struct {
	Listen string `toml:"listen"` // empty disables the /metrics endpoint
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:     "local",
			Path:        "./mesh",
			Compression: "none",
			Badger: BadgerConfig{
				SyncWrites: true,
				GCInterval: 5 * time.Minute,
			},
		},
		Mesh: MeshConfig{
			SaveInterval: navgraph.DefaultSaveInterval,
			GrowBudget:   navgraph.DefaultGrowBudget,
			GrowRange:    50,
			PageLimit:    regionstore.DefaultPageLimit,
			PageIdle:     regionstore.DefaultPageIdle,
			IOWorkers:    4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local", "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "memory":
	case "s3", "s3-ledger":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required")
		}
		if c.Storage.Backend == "s3-ledger" && c.Storage.S3.LedgerTable == "" {
			return errors.New("storage.s3.ledger_table is required")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return errors.New("storage.minio.endpoint and storage.minio.bucket are required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := blobstore.ParseCompression(c.Storage.Compression); err != nil {
		return err
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	if c.Mesh.GrowBudget < 0 || c.Mesh.SaveInterval < 0 {
		return errors.New("mesh durations must not be negative")
	}
	return nil
}

func (l LoggingConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

func (l LoggingConfig) logger(w io.Writer) *navgraph.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return navgraph.NewLogger(slog.NewJSONHandler(w, hopts))
	}
	return navgraph.NewLogger(slog.NewTextHandler(w, hopts))
}

// openStore builds the configured blob store. The returned closer releases
// backend resources and is never nil.
func openStore(ctx context.Context, cfg StorageConfig, logger *navgraph.Logger) (blobstore.Store, func() error, error) {
	noop := func() error { return nil }

	codec, err := blobstore.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, noop, err
	}

	var (
		store  blobstore.Store
		closer = noop
	)
	switch cfg.Backend {
	case "local":
		store = blobstore.NewLocalStore(cfg.Path)
	case "memory":
		store = blobstore.NewMemoryStore()
	case "badger":
		bcfg := badgerstore.DefaultConfig(cfg.Path)
		bcfg.SyncWrites = cfg.Badger.SyncWrites
		bcfg.GCInterval = cfg.Badger.GCInterval
		bcfg.Logger = logger.WithComponent("badger").Logger
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, noop, err
		}
		store, closer = db, db.Close
	case "s3", "s3-ledger":
		opts := []s3store.Option{s3store.WithPrefix(cfg.S3.Prefix)}
		if cfg.S3.Region != "" {
			opts = append(opts, s3store.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(cfg.S3.Endpoint))
		}
		if cfg.Backend == "s3-ledger" {
			store, err = s3store.OpenLedger(ctx, cfg.S3.Bucket, cfg.S3.LedgerTable, opts...)
		} else {
			store, err = s3store.New(ctx, cfg.S3.Bucket, opts...)
		}
		if err != nil {
			return nil, noop, err
		}
	case "minio":
		store, err = miniostore.Open(ctx, miniostore.Config{
			Endpoint:     cfg.MinIO.Endpoint,
			Bucket:       cfg.MinIO.Bucket,
			Prefix:       cfg.MinIO.Prefix,
			AccessKey:    cfg.MinIO.AccessKey,
			SecretKey:    cfg.MinIO.SecretKey,
			Secure:       cfg.MinIO.Secure,
			CreateBucket: cfg.MinIO.Create,
		})
		if err != nil {
			return nil, noop, err
		}
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return blobstore.Compressed(store, codec), closer, nil
}

// meshOptions translates the mesh section into facade options.
func (c *Config) meshOptions(store blobstore.Store, logger *navgraph.Logger) []navgraph.Option {
	return []navgraph.Option{
		navgraph.WithStore(store),
		navgraph.WithLogger(logger),
		navgraph.WithSaveInterval(c.Mesh.SaveInterval),
		navgraph.WithGrowBudget(c.Mesh.GrowBudget),
		navgraph.WithPageOut(c.Mesh.PageLimit, c.Mesh.PageIdle),
		navgraph.WithResourceLimits(c.Mesh.IOWorkers, c.Mesh.IOLimit),
		navgraph.WithVerifiedWrites(c.Storage.Verify),
	}
}
