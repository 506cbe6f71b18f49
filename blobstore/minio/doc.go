// Package minio stores region files in MinIO or any other S3-compatible
// server (Ceph, SeaweedFS, Garage) through the MinIO client.
//
//	store, err := minio.Open(ctx, minio.Config{
//	    Endpoint:     "localhost:9000",
//	    Bucket:       "meshes",
//	    Prefix:       "world-1",
//	    AccessKey:    "minioadmin",
//	    SecretKey:    "minioadmin",
//	    CreateBucket: true,
//	})
package minio
