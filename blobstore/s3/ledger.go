package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/navgraph/blobstore"
)

// LedgerStore implements blobstore.Store on S3 with a DynamoDB ledger that
// assigns every blob a monotonically increasing generation. Content is
// written to a generation-suffixed key first and only becomes visible once
// the conditional ledger write for that generation succeeds, so two
// processes saving the same region cannot silently overwrite each other.
//
// Table schema:
//   - Partition key: blob (string) - base URI joined with the blob name
//   - Sort key: generation (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name navgraph-ledger \
//	  --attribute-definitions AttributeName=blob,AttributeType=S AttributeName=generation,AttributeType=N \
//	  --key-schema AttributeName=blob,KeyType=HASH AttributeName=generation,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type LedgerStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var (
	_ DDBClient       = (*dynamodb.Client)(nil)
	_ blobstore.Store = (*LedgerStore)(nil)
)

// ErrConcurrentModification is returned when another writer committed the
// same generation first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

const genSep = "@g"

// NewLedgerStore creates an S3 store guarded by a DynamoDB ledger.
// baseURI (e.g. "s3://bucket/prefix") namespaces the ledger entries.
func NewLedgerStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *LedgerStore {
	return &LedgerStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   strings.TrimSuffix(baseURI, "/"),
	}
}

// OpenLedger loads the default AWS configuration and creates a
// LedgerStore over bucket that commits to the DynamoDB table.
func OpenLedger(ctx context.Context, bucket, table string, optFns ...Option) (*LedgerStore, error) {
	cfg, o, err := loadConfig(ctx, optFns)
	if err != nil {
		return nil, err
	}
	store := NewStore(newClient(cfg, o), bucket, o.prefix)
	baseURI := "s3://" + bucket
	if store.prefix != "" {
		baseURI += "/" + store.prefix
	}
	return NewLedgerStore(store, dynamodb.NewFromConfig(cfg), table, baseURI), nil
}

func (s *LedgerStore) partition(name string) string {
	return s.baseURI + "/" + name
}

func objectName(name string, gen uint64) string {
	return name + genSep + strconv.FormatUint(gen, 10)
}

// Generation returns the latest committed generation of name and the object
// holding it. Generation 0 means the blob was never written. A deleted blob
// has an empty object name.
func (s *LedgerStore) Generation(ctx context.Context, name string) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#b = :b"),
		ExpressionAttributeNames: map[string]string{
			"#b": "blob",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberS{Value: s.partition(name)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	genAttr, ok := item["generation"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid generation attribute in DynamoDB")
	}
	gen, err := strconv.ParseUint(genAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse generation: %w", err)
	}
	var object string
	if objAttr, ok := item["object"].(*types.AttributeValueMemberS); ok {
		object = objAttr.Value
	}
	return gen, object, nil
}

// commit records generation gen of name pointing at object.
func (s *LedgerStore) commit(ctx context.Context, name string, gen uint64, object string) error {
	item := map[string]types.AttributeValue{
		"blob":       &types.AttributeValueMemberS{Value: s.partition(name)},
		"generation": &types.AttributeValueMemberN{Value: strconv.FormatUint(gen, 10)},
	}
	if object != "" {
		item["object"] = &types.AttributeValueMemberS{Value: object}
	}
	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#g)"),
		ExpressionAttributeNames: map[string]string{
			"#g": "generation",
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit generation to DynamoDB: %w", err)
	}
	return nil
}

// Get reads the latest committed generation of name. Blobs that were never
// committed through the ledger are read from their plain key.
func (s *LedgerStore) Get(ctx context.Context, name string) ([]byte, error) {
	gen, object, err := s.Generation(ctx, name)
	if err != nil {
		return nil, err
	}
	switch {
	case gen == 0:
		return s.s3Store.Get(ctx, name)
	case object == "":
		return nil, blobstore.ErrNotFound
	default:
		return s.s3Store.Get(ctx, object)
	}
}

// Put writes data as the next generation of name. It returns
// ErrConcurrentModification if another writer committed that generation
// first; the uploaded object is removed in that case.
func (s *LedgerStore) Put(ctx context.Context, name string, data []byte) error {
	gen, prev, err := s.Generation(ctx, name)
	if err != nil {
		return err
	}
	next := gen + 1
	object := objectName(name, next)
	if err := s.s3Store.Put(ctx, object, data); err != nil {
		return err
	}
	if err := s.commit(ctx, name, next, object); err != nil {
		_ = s.s3Store.Delete(ctx, object)
		return err
	}
	if prev != "" {
		_ = s.s3Store.Delete(ctx, prev)
	}
	return nil
}

// Delete commits a tombstone generation for name.
func (s *LedgerStore) Delete(ctx context.Context, name string) error {
	gen, prev, err := s.Generation(ctx, name)
	if err != nil {
		return err
	}
	if gen == 0 {
		return s.s3Store.Delete(ctx, name)
	}
	if prev == "" {
		return nil
	}
	if err := s.commit(ctx, name, gen+1, ""); err != nil {
		return err
	}
	return s.s3Store.Delete(ctx, prev)
}

// List returns the names of live blobs under prefix.
func (s *LedgerStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.s3Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		name := k
		if i := strings.LastIndex(k, genSep); i >= 0 {
			if _, perr := strconv.ParseUint(k[i+len(genSep):], 10, 64); perr == nil {
				name = k[:i]
			}
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		gen, object, err := s.Generation(ctx, name)
		if err != nil {
			return nil, err
		}
		if gen > 0 && object == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
