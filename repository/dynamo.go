package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"fnkit/health"
)

const (
	dynamoKeyAttribute   = "key"
	dynamoValueAttribute = "value"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// item is the stored shape: the key is the partition key and the value is
// kept as the raw JSON string.
type item struct {
	Key   string `dynamodbav:"key"`
	Value string `dynamodbav:"value"`
}

// DynamoBackend stores one item per key in a table whose partition key is
// the string attribute "key".
type DynamoBackend struct {
	client DynamoAPI
	table  string
}

// NewDynamoBackend creates a backend over table.
func NewDynamoBackend(client DynamoAPI, table string) *DynamoBackend {
	return &DynamoBackend{client: client, table: table}
}

func (b *DynamoBackend) keyOf(key string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		dynamoKeyAttribute: &ddbtypes.AttributeValueMemberS{Value: key},
	}
}

func (b *DynamoBackend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            b.keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return []byte(it.Value), nil
}

func (b *DynamoBackend) Put(ctx context.Context, key string, value []byte) error {
	av, err := attributevalue.MarshalMap(item{Key: key, Value: string(value)})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (b *DynamoBackend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       b.keyOf(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func (b *DynamoBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:            aws.String(b.table),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#k": dynamoKeyAttribute,
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		for _, av := range page.Items {
			var it item
			if err := attributevalue.UnmarshalMap(av, &it); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key: %w", err)
			}
			keys = append(keys, it.Key)
		}
	}

	slices.Sort(keys)
	return keys, nil
}

func (b *DynamoBackend) Len(ctx context.Context) (int, error) {
	total := 0

	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName: aws.String(b.table),
		Select:    ddbtypes.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count items: %w", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

func (b *DynamoBackend) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// CheckHealth describes the table.
func (b *DynamoBackend) CheckHealth(ctx context.Context) health.Report {
	out, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(b.table),
	})
	if err != nil {
		return health.Failed("dynamodb", err)
	}

	report := health.OK("dynamodb")
	report.Details = map[string]any{"table": b.table}
	if out.Table != nil {
		report.Details["table_status"] = string(out.Table.TableStatus)
	}
	return report
}
