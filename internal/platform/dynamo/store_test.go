package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	GetItemFn            func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	PutItemFn            func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	UpdateItemFn         func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	QueryFn              func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	TransactWriteItemsFn func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (m *mockAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetItemFn(in)
}

func (m *mockAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutItemFn(in)
}

func (m *mockAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.UpdateItemFn(in)
}

func (m *mockAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return m.QueryFn(in)
}

func (m *mockAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return m.TransactWriteItemsFn(in)
}

func item(collection, id string, data map[string]types.AttributeValue) map[string]types.AttributeValue {
	it := key(collection, id)
	it[attrData] = &types.AttributeValueMemberM{Value: data}
	return it
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	api := &mockAPI{GetItemFn: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{}, nil
	}}

	_, err := New(api, "docs").Get(context.Background(), store.CollectionVendors, "v1")

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetDecodesData(t *testing.T) {
	api := &mockAPI{GetItemFn: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		assert.Equal(t, "docs", aws.ToString(in.TableName))
		assert.True(t, aws.ToBool(in.ConsistentRead))
		return &dynamodb.GetItemOutput{Item: item("vendors", "v1", map[string]types.AttributeValue{
			"status":   &types.AttributeValueMemberS{Value: "APPROVED"},
			"fitScore": &types.AttributeValueMemberN{Value: "87"},
		})}, nil
	}}

	doc, err := New(api, "docs").Get(context.Background(), "vendors", "v1")

	require.NoError(t, err)
	assert.Equal(t, "v1", doc.ID)
	assert.Equal(t, "APPROVED", doc.Fields["status"])
	assert.Equal(t, 87.0, doc.Fields["fitScore"])
}

func TestPutConditionFailureIsDuplicate(t *testing.T) {
	api := &mockAPI{PutItemFn: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		assert.Equal(t, guardNotExists, aws.ToString(in.ConditionExpression))
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}}

	err := New(api, "docs").Put(context.Background(), "vendors", "v1", store.Fields{"status": "PENDING"})

	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUpdateIfDistinguishesMissingFromFailedCondition(t *testing.T) {
	tests := []struct {
		name    string
		old     map[string]types.AttributeValue
		wantErr error
	}{
		{name: "missing document", old: nil, wantErr: store.ErrNotFound},
		{name: "condition false", old: item("tasks", "t1", map[string]types.AttributeValue{
			"status": &types.AttributeValueMemberS{Value: "CLAIMED"},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{UpdateItemFn: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
				assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
				return nil, &types.ConditionalCheckFailedException{Item: tt.old}
			}}

			ok, err := New(api, "docs").UpdateIf(context.Background(), "tasks", "t1",
				[]store.Filter{store.Where("status", store.OpEqual, "PENDING")},
				store.Fields{"status": "CLAIMED"})

			assert.False(t, ok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateIfBuildsExpressions(t *testing.T) {
	api := &mockAPI{UpdateItemFn: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		assert.Equal(t, "SET #d.#n2 = :v0", aws.ToString(in.UpdateExpression))
		assert.Equal(t, "attribute_exists(#pk) AND #d.#n2 = :v1", aws.ToString(in.ConditionExpression))
		assert.Equal(t, map[string]string{"#d": "data", "#pk": "pk", "#n2": "status"}, in.ExpressionAttributeNames)
		return &dynamodb.UpdateItemOutput{}, nil
	}}

	ok, err := New(api, "docs").UpdateIf(context.Background(), "tasks", "t1",
		[]store.Filter{store.Where("status", store.OpEqual, "PENDING")},
		store.Fields{"status": "CLAIMED"})

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryFiltersAndOrdersClientSide(t *testing.T) {
	api := &mockAPI{QueryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		assert.Equal(t, "#pk = :pk", aws.ToString(in.KeyConditionExpression))
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			item("tasks", "b", map[string]types.AttributeValue{
				"status":      &types.AttributeValueMemberS{Value: "PENDING"},
				"scheduledAt": &types.AttributeValueMemberS{Value: "2026-01-02T00:00:00.000000Z"},
			}),
			item("tasks", "a", map[string]types.AttributeValue{
				"status":      &types.AttributeValueMemberS{Value: "PENDING"},
				"scheduledAt": &types.AttributeValueMemberS{Value: "2026-01-01T00:00:00.000000Z"},
			}),
			item("tasks", "c", map[string]types.AttributeValue{
				"status":      &types.AttributeValueMemberS{Value: "COMPLETED"},
				"scheduledAt": &types.AttributeValueMemberS{Value: "2025-01-01T00:00:00.000000Z"},
			}),
		}}, nil
	}}

	docs, err := New(api, "docs").Query(context.Background(), "tasks", store.Query{
		Filters: []store.Filter{store.Where("status", store.OpEqual, "PENDING")},
		OrderBy: "scheduledAt",
	})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestCommitMapsCancellationReasons(t *testing.T) {
	tests := []struct {
		name    string
		reasons []types.CancellationReason
		wantErr error
	}{
		{
			name:    "create collision",
			reasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}},
			wantErr: store.ErrDuplicate,
		},
		{
			name:    "guarded update",
			reasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
			wantErr: store.ErrConditionFailed,
		},
		{
			name:    "conflict",
			reasons: []types.CancellationReason{{Code: aws.String("TransactionConflict")}},
			wantErr: store.ErrTransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{TransactWriteItemsFn: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				require.Len(t, in.TransactItems, 2)
				assert.NotNil(t, in.TransactItems[0].Put)
				assert.NotNil(t, in.TransactItems[1].Update)
				return nil, &types.TransactionCanceledException{CancellationReasons: tt.reasons}
			}}

			err := New(api, "docs").Commit(context.Background(),
				store.Create("activities", "a1", store.Fields{"type": "NOTE"}),
				store.Update("vendors", "v1", store.Fields{"status": "APPROVED"},
					store.Where("status", store.OpEqual, "PENDING")),
			)

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCommitRejectsOversizedTransaction(t *testing.T) {
	writes := make([]store.Write, maxTransactItems+1)
	for i := range writes {
		writes[i] = store.Delete("activities", store.NewID())
	}

	err := New(&mockAPI{}, "docs").Commit(context.Background(), writes...)

	assert.ErrorIs(t, err, store.ErrTransactionFailed)
}

func TestCommitWrapsOtherErrors(t *testing.T) {
	api := &mockAPI{TransactWriteItemsFn: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		return nil, errors.New("throttled")
	}}

	err := New(api, "docs").Commit(context.Background(), store.Delete("tasks", "t1"))

	assert.ErrorIs(t, err, store.ErrTransactionFailed)
}

func TestBatchDeleteEmptyIsNoop(t *testing.T) {
	err := New(&mockAPI{}, "docs").BatchDelete(context.Background(), "tasks", nil)

	assert.NoError(t, err)
}
