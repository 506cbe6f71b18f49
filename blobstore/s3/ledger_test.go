package s3

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/navgraph/blobstore"
)

const partition = "s3://test-bucket/map/0/1.mesh"

func latest(gen, object string) *dynamodb.QueryOutput {
	item := map[string]ddbtypes.AttributeValue{
		"blob":       &ddbtypes.AttributeValueMemberS{Value: partition},
		"generation": &ddbtypes.AttributeValueMemberN{Value: gen},
	}
	if object != "" {
		item["object"] = &ddbtypes.AttributeValueMemberS{Value: object}
	}
	return &dynamodb.QueryOutput{Items: []map[string]ddbtypes.AttributeValue{item}}
}

func newLedger() (*LedgerStore, *MockS3Client, *MockDDBClient) {
	s3c := new(MockS3Client)
	ddb := new(MockDDBClient)
	return NewLedgerStore(NewStore(s3c, "test-bucket", "map"), ddb, "ledger", "s3://test-bucket/map/"), s3c, ddb
}

func TestLedger_PutFirstGeneration(t *testing.T) {
	store, s3c, ddb := newLedger()

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	s3c.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "map/0/1.mesh@g1"
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		gen := in.Item["generation"].(*ddbtypes.AttributeValueMemberN).Value
		blob := in.Item["blob"].(*ddbtypes.AttributeValueMemberS).Value
		return gen == "1" && blob == partition && aws.ToString(in.ConditionExpression) == "attribute_not_exists(#g)"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	require.NoError(t, store.Put(t.Context(), "0/1.mesh", []byte("data")))
	s3c.AssertExpectations(t)
	ddb.AssertExpectations(t)
}

func TestLedger_PutConflict(t *testing.T) {
	store, s3c, ddb := newLedger()

	ddb.On("Query", mock.Anything, mock.Anything).Return(latest("4", "0/1.mesh@g4"), nil).Once()
	s3c.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &ddbtypes.ConditionalCheckFailedException{}).Once()
	s3c.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "map/0/1.mesh@g5"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	err := store.Put(t.Context(), "0/1.mesh", []byte("data"))
	assert.ErrorIs(t, err, ErrConcurrentModification)
	s3c.AssertExpectations(t)
	ddb.AssertExpectations(t)
}

func TestLedger_PutReplacesPreviousObject(t *testing.T) {
	store, s3c, ddb := newLedger()

	ddb.On("Query", mock.Anything, mock.Anything).Return(latest("2", "0/1.mesh@g2"), nil).Once()
	s3c.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()
	s3c.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "map/0/1.mesh@g2"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(t.Context(), "0/1.mesh", []byte("data")))
	s3c.AssertExpectations(t)
}

func TestLedger_Get(t *testing.T) {
	t.Run("Committed", func(t *testing.T) {
		store, s3c, ddb := newLedger()
		ddb.On("Query", mock.Anything, mock.Anything).Return(latest("3", "0/1.mesh@g3"), nil).Once()
		s3c.On("GetObject", mock.Anything, getKey("map/0/1.mesh@g3")).Return(body("gen3"), nil).Once()

		data, err := store.Get(t.Context(), "0/1.mesh")
		require.NoError(t, err)
		assert.Equal(t, []byte("gen3"), data)
	})

	t.Run("Unledgered", func(t *testing.T) {
		store, s3c, ddb := newLedger()
		ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
		s3c.On("GetObject", mock.Anything, getKey("map/0/1.mesh")).Return(body("plain"), nil).Once()

		data, err := store.Get(t.Context(), "0/1.mesh")
		require.NoError(t, err)
		assert.Equal(t, []byte("plain"), data)
	})

	t.Run("Tombstone", func(t *testing.T) {
		store, _, ddb := newLedger()
		ddb.On("Query", mock.Anything, mock.Anything).Return(latest("7", ""), nil).Once()

		_, err := store.Get(t.Context(), "0/1.mesh")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestLedger_Delete(t *testing.T) {
	store, s3c, ddb := newLedger()

	ddb.On("Query", mock.Anything, mock.Anything).Return(latest("3", "0/1.mesh@g3"), nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		_, hasObject := in.Item["object"]
		return in.Item["generation"].(*ddbtypes.AttributeValueMemberN).Value == "4" && !hasObject
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	s3c.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Delete(t.Context(), "0/1.mesh"))
	s3c.AssertExpectations(t)
	ddb.AssertExpectations(t)
}
