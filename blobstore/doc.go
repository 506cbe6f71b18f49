// Package blobstore provides the storage abstraction behind region files.
//
// Store is a flat namespace of named blobs with atomic Put. Implementations
// must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, write to temp file then rename
//   - MemoryStore: in-memory, for tests
//   - CompressedStore: LZ4 or ZSTD envelope around another Store
//   - s3.Store and s3.LedgerStore: Amazon S3, optionally with a DynamoDB
//     generation ledger for concurrent writers
//   - minio.Store: MinIO and other S3-compatible servers
//   - badger.Store: embedded Badger key-value store
//
// # Custom Implementations
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Missing blobs must be reported with an error satisfying
// errors.Is(err, ErrNotFound).
package blobstore
