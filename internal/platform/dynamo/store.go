package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/phrazzld/vendorflow/internal/store"
)

// maxTransactItems is the DynamoDB limit for TransactWriteItems.
const maxTransactItems = 100

const (
	guardExists    = "attribute_exists(#pk)"
	guardNotExists = "attribute_not_exists(#pk)"
)

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store implements store.DocumentStore on one DynamoDB table.
type Store struct {
	db    API
	table string
}

// New creates a Store over table.
func New(db API, table string) *Store {
	return &Store{db: db, table: table}
}

var _ store.DocumentStore = (*Store)(nil)

func key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartition: &types.AttributeValueMemberS{Value: collection},
		attrSort:      &types.AttributeValueMemberS{Value: id},
	}
}

// Get implements store.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if out.Item == nil {
		return store.Document{}, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return decodeItem(out.Item)
}

// Query implements store.DocumentStore. The whole collection partition is
// read with strongly consistent pages and then filtered in process.
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	p := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrPartition},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	})

	var docs []store.Document
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		for _, item := range page.Items {
			doc, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return store.Apply(docs, q), nil
}

// Add implements store.DocumentStore.
func (s *Store) Add(ctx context.Context, collection string, fields store.Fields) (string, error) {
	id := store.NewID()
	if err := s.Put(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Put implements store.DocumentStore.
func (s *Store) Put(ctx context.Context, collection, id string, fields store.Fields) error {
	in, err := s.putInput(store.Create(collection, id, fields))
	if err != nil {
		return err
	}
	_, err = s.db.PutItem(ctx, in)
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return fmt.Errorf("%w: %s/%s", store.ErrDuplicate, collection, id)
	}
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update implements store.DocumentStore.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	ok, err := s.UpdateIf(ctx, collection, id, nil, fields)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return nil
}

// UpdateIf implements store.DocumentStore.
func (s *Store) UpdateIf(
	ctx context.Context,
	collection, id string,
	conds []store.Filter,
	fields store.Fields,
) (bool, error) {
	in, err := s.updateInput(store.Update(collection, id, fields, conds...))
	if err != nil {
		return false, err
	}
	in.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld

	_, err = s.db.UpdateItem(ctx, in)
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		if len(cfe.Item) == 0 {
			return false, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// BatchDelete implements store.DocumentStore as one transaction, so at most
// maxTransactItems ids can be removed per call.
func (s *Store) BatchDelete(ctx context.Context, collection string, ids []string) error {
	writes := make([]store.Write, len(ids))
	for i, id := range ids {
		writes[i] = store.Delete(collection, id)
	}
	return s.Commit(ctx, writes...)
}

// Commit implements store.DocumentStore with TransactWriteItems.
func (s *Store) Commit(ctx context.Context, writes ...store.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > maxTransactItems {
		return fmt.Errorf("%w: %d writes exceeds the %d item transaction limit",
			store.ErrTransactionFailed, len(writes), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, len(writes))
	for i, w := range writes {
		item, err := s.transactItem(w)
		if err != nil {
			return err
		}
		items[i] = item
	}

	_, err := s.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return mapTransactError(err, writes)
	}
	return nil
}

func (s *Store) transactItem(w store.Write) (types.TransactWriteItem, error) {
	if w.ID == "" {
		return types.TransactWriteItem{}, fmt.Errorf("%w: %s write without id", store.ErrInvalidEntity, w.Kind)
	}
	switch w.Kind {
	case store.WriteCreate:
		in, err := s.putInput(w)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                in.TableName,
			Item:                     in.Item,
			ConditionExpression:      in.ConditionExpression,
			ExpressionAttributeNames: in.ExpressionAttributeNames,
		}}, nil
	case store.WriteUpdate:
		in, err := s.updateInput(w)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 in.TableName,
			Key:                       in.Key,
			UpdateExpression:          in.UpdateExpression,
			ConditionExpression:       in.ConditionExpression,
			ExpressionAttributeNames:  in.ExpressionAttributeNames,
			ExpressionAttributeValues: in.ExpressionAttributeValues,
		}}, nil
	case store.WriteDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.table),
			Key:       key(w.Collection, w.ID),
		}}, nil
	default:
		return types.TransactWriteItem{}, fmt.Errorf("%w: unknown write kind %d", store.ErrInvalidEntity, w.Kind)
	}
}

func (s *Store) putInput(w store.Write) (*dynamodb.PutItemInput, error) {
	set, _ := store.SplitUpdate(w.Fields)
	data, err := attributevalue.MarshalMap(map[string]any(set))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	item := key(w.Collection, w.ID)
	item[attrData] = &types.AttributeValueMemberM{Value: data}

	return &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      aws.String(guardNotExists),
		ExpressionAttributeNames: map[string]string{"#pk": attrPartition},
	}, nil
}

func (s *Store) updateInput(w store.Write) (*dynamodb.UpdateItemInput, error) {
	e := newExpr()
	update, err := e.update(w.Fields)
	if err != nil {
		return nil, err
	}
	cond, err := e.conditions(guardExists, w.Conditions)
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(w.Collection, w.ID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  e.namesFor(update, cond),
		ExpressionAttributeValues: e.valuesOrNil(),
	}, nil
}

// mapTransactError translates cancellation reasons into store errors.
func mapTransactError(err error, writes []store.Write) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" || i >= len(writes) {
			continue
		}
		w := writes[i]
		if w.Kind == store.WriteCreate {
			return fmt.Errorf("%w: %s/%s", store.ErrDuplicate, w.Collection, w.ID)
		}
		return fmt.Errorf("%w: %s/%s", store.ErrConditionFailed, w.Collection, w.ID)
	}
	return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
}

func decodeItem(item map[string]types.AttributeValue) (store.Document, error) {
	var id string
	if err := attributevalue.Unmarshal(item[attrSort], &id); err != nil {
		return store.Document{}, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	fields := store.Fields{}
	if data, ok := item[attrData]; ok {
		var m map[string]any
		if err := attributevalue.Unmarshal(data, &m); err != nil {
			return store.Document{}, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		for k, v := range m {
			fields[k] = v
		}
	}
	return store.Document{ID: id, Fields: fields}, nil
}
