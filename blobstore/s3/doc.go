// Package s3 stores region blobs in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("navgraph/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Several processes growing the same map can share a bucket through
// LedgerStore, which records a generation per blob in DynamoDB and rejects
// writes based on a stale generation:
//
//	ledger := s3.NewLedgerStore(store, dynamodb.NewFromConfig(cfg), "navgraph-ledger", "s3://my-bucket/navgraph")
package s3
