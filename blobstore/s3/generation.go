package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vdego/blobstore"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another writer published the
// same generation first.
var ErrConcurrentModification = errors.New("s3: concurrent modification detected")

// GenerationLog records published backups in DynamoDB.
//
// Every Publish appends generation N+1 with a conditional write, so two
// writers racing for the same generation cannot both succeed.
//
// Table schema:
//   - Partition key: base_uri (string)
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vdego-backups \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type GenerationLog struct {
	client    DDBClient
	tableName string
	baseURI   string
}

// NewGenerationLog creates a generation log partitioned by baseURI,
// typically "s3://bucket/prefix".
func NewGenerationLog(client DDBClient, tableName, baseURI string) *GenerationLog {
	return &GenerationLog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Publish records id as the newest backup.
func (g *GenerationLog) Publish(ctx context.Context, id string) error {
	current, _, err := g.latest(ctx)
	if err != nil {
		return err
	}

	_, err = g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(g.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":  &types.AttributeValueMemberS{Value: g.baseURI},
			"version":   &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"backup_id": &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("s3: failed to publish generation: %w", err)
	}
	return nil
}

// Latest returns the newest published backup id.
func (g *GenerationLog) Latest(ctx context.Context) (string, error) {
	version, id, err := g.latest(ctx)
	if err != nil {
		return "", err
	}
	if version == 0 {
		return "", blobstore.ErrNotFound
	}
	return id, nil
}

// Generation returns the newest generation number, 0 when none exists.
func (g *GenerationLog) Generation(ctx context.Context) (uint64, error) {
	version, _, err := g.latest(ctx)
	return version, err
}

func (g *GenerationLog) latest(ctx context.Context) (uint64, string, error) {
	resp, err := g.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(g.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: g.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: failed to query generations: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute")
	}
	idAttr, ok := item["backup_id"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid backup_id attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: failed to parse version: %w", err)
	}
	return version, idAttr.Value, nil
}
