// Package dynamo хранит документы в одной таблице DynamoDB с ключом (collection, id).
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// API подмножество клиента DynamoDB, которое использует Backend
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Backend реализует remote.Backend поверх DynamoDB
type Backend struct {
	client API
	table  string
}

var _ remote.Backend = (*Backend)(nil)

type item struct {
	Collection string         `dynamodbav:"collection"`
	ID         string         `dynamodbav:"id"`
	Data       map[string]any `dynamodbav:"data"`
}

// New создает новый экземпляр Backend
func New(client API, table string) *Backend {
	return &Backend{client: client, table: table}
}

// NewFromConfig создает клиента DynamoDB из стандартной цепочки AWS
func NewFromConfig(ctx context.Context, region, endpoint, table string) (*Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, table), nil
}

func (b *Backend) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}

func (b *Backend) put(ctx context.Context, collection, id string, fields map[string]any, condition string) error {
	av, err := attributevalue.MarshalMap(item{Collection: collection, ID: id, Data: fields})
	if err != nil {
		return fmt.Errorf("ошибка кодирования документа %s/%s: %w", collection, id, err)
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
	}
	_, err = b.client.PutItem(ctx, input)
	return err
}

func (b *Backend) Create(ctx context.Context, collection, id string, doc any) error {
	fields, err := remote.ToFields(doc)
	if err != nil {
		return err
	}
	err = b.put(ctx, collection, id, fields, "attribute_not_exists(id)")
	if isConditionFailed(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrAlreadyExists)
	}
	return err
}

func (b *Backend) Set(ctx context.Context, collection, id string, doc any) error {
	fields, err := remote.ToFields(doc)
	if err != nil {
		return err
	}
	return b.put(ctx, collection, id, fields, "")
}

// Update читает документ, применяет изменения и записывает его обратно.
// Условие attribute_exists не защищает от параллельных обновлений одного документа.
func (b *Backend) Update(ctx context.Context, collection, id string, patch remote.Patch) error {
	current, err := b.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	next, err := remote.ApplyPatch(current.Fields, patch)
	if err != nil {
		return err
	}
	err = b.put(ctx, collection, id, next, "attribute_exists(id)")
	if isConditionFailed(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return err
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(b.table),
		Key:                 b.key(collection, id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return err
}

func (b *Backend) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            b.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return remote.Document{}, err
	}
	if out.Item == nil {
		return remote.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return remote.Document{}, fmt.Errorf("ошибка декодирования документа %s/%s: %w", collection, id, err)
	}
	return toDocument(it)
}

// Query читает всю коллекцию по ключу раздела и фильтрует на стороне клиента
func (b *Backend) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(b.table),
		KeyConditionExpression: aws.String("#c = :collection"),
		ExpressionAttributeNames: map[string]string{
			"#c": "collection",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":collection": &types.AttributeValueMemberS{Value: q.Collection},
		},
		ConsistentRead: aws.Bool(true),
	}

	var docs []remote.Document
	var startKey map[string]types.AttributeValue
	for {
		input.ExclusiveStartKey = startKey
		out, err := b.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var items []item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("ошибка декодирования коллекции %s: %w", q.Collection, err)
		}
		for _, it := range items {
			d, err := toDocument(it)
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return remote.Apply(docs, q), nil
}

// toDocument приводит значения к JSON-виду, как у остальных драйверов
func toDocument(it item) (remote.Document, error) {
	fields, err := remote.ToFields(it.Data)
	if err != nil {
		return remote.Document{}, err
	}
	return remote.Document{ID: it.ID, Fields: fields}, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
