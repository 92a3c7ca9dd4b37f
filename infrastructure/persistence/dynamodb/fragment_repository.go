package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

// FragmentRepository implements ports.FragmentRepository using DynamoDB
type FragmentRepository struct {
	client      *dynamodb.Client
	tableName   string
	memoryIndex string
	logger      *zap.Logger
}

// NewFragmentRepository creates a new FragmentRepository. memoryIndex is
// the GSI keyed on the owning memory id.
func NewFragmentRepository(client *dynamodb.Client, tableName, memoryIndex string, logger *zap.Logger) *FragmentRepository {
	return &FragmentRepository{
		client:      client,
		tableName:   tableName,
		memoryIndex: memoryIndex,
		logger:      logger,
	}
}

var _ ports.FragmentRepository = (*FragmentRepository)(nil)

// fragmentItem represents the DynamoDB item structure for a fragment
type fragmentItem struct {
	PK         string    `dynamodbav:"PK"`
	GSI1PK     string    `dynamodbav:"GSI1PK"`
	GSI1SK     string    `dynamodbav:"GSI1SK"`
	EntityType string    `dynamodbav:"EntityType"`
	FragmentID string    `dynamodbav:"FragmentID"`
	MemoryID   string    `dynamodbav:"MemoryID"`
	Kind       string    `dynamodbav:"Kind"`
	Content    string    `dynamodbav:"Content,omitempty"`
	File       *fileItem `dynamodbav:"File,omitempty"`
	CreatedAt  string    `dynamodbav:"CreatedAt"`
	UpdatedAt  string    `dynamodbav:"UpdatedAt"`
	Version    int       `dynamodbav:"Version"`
}

type fileItem struct {
	Name      string `dynamodbav:"Name"`
	MediaType string `dynamodbav:"MediaType"`
	Key       string `dynamodbav:"Key"`
	URL       string `dynamodbav:"URL"`
	Size      int64  `dynamodbav:"Size"`
	Status    string `dynamodbav:"Status"`
	FailCause string `dynamodbav:"FailCause,omitempty"`
}

func fragmentKey(id valueobjects.FragmentID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("FRAGMENT#%s", id.String())},
	}
}

// Load implements ports.FragmentRepository
func (r *FragmentRepository) Load(ctx context.Context, id valueobjects.FragmentID) (*entities.Fragment, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       fragmentKey(id),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get fragment", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("fragment")
	}

	var item fragmentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal fragment", err)
	}

	return item.toEntity()
}

// Save implements ports.FragmentRepository
func (r *FragmentRepository) Save(ctx context.Context, f *entities.Fragment) error {
	av, err := attributevalue.MarshalMap(newFragmentItem(f))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal fragment", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("failed to save fragment",
			zap.Error(err),
			zap.String("fragment_id", f.ID().String()))
		return pkgerrors.NewDatabaseError("put fragment", err)
	}

	return nil
}

// SaveAll implements ports.FragmentRepository. Writes go out in
// transactional batches so a merge either moves a whole chunk of
// fragments or none of them.
func (r *FragmentRepository) SaveAll(ctx context.Context, fragments []*entities.Fragment) error {
	const batchSize = 25 // TransactWriteItems limit

	for start := 0; start < len(fragments); start += batchSize {
		end := start + batchSize
		if end > len(fragments) {
			end = len(fragments)
		}

		items := make([]types.TransactWriteItem, 0, end-start)
		for _, f := range fragments[start:end] {
			av, err := attributevalue.MarshalMap(newFragmentItem(f))
			if err != nil {
				return pkgerrors.NewDatabaseError("marshal fragment", err)
			}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      av,
				},
			})
		}

		if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		}); err != nil {
			return pkgerrors.NewDatabaseError("transact write fragments", err)
		}
	}

	return nil
}

// Delete implements ports.FragmentRepository
func (r *FragmentRepository) Delete(ctx context.Context, id valueobjects.FragmentID) error {
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("build delete expression", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       fragmentKey(id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("fragment")
		}
		return pkgerrors.NewDatabaseError("delete fragment", err)
	}

	return nil
}

// FindByMemory implements ports.FragmentRepository
func (r *FragmentRepository) FindByMemory(ctx context.Context, memoryID valueobjects.MemoryID) ([]*entities.Fragment, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("MEMORY#%s", memoryID.String())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build memory query", err)
	}

	var out []*entities.Fragment
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.memoryIndex),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query fragments by memory", err)
		}

		for _, raw := range result.Items {
			var item fragmentItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("skipping unreadable fragment item", zap.Error(err))
				continue
			}
			f, err := item.toEntity()
			if err != nil {
				r.logger.Warn("skipping invalid fragment item",
					zap.String("fragment_id", item.FragmentID),
					zap.Error(err))
				continue
			}
			out = append(out, f)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return out, nil
}

func newFragmentItem(f *entities.Fragment) fragmentItem {
	item := fragmentItem{
		PK:         fmt.Sprintf("FRAGMENT#%s", f.ID().String()),
		GSI1PK:     fmt.Sprintf("MEMORY#%s", f.MemoryID().String()),
		GSI1SK:     fmt.Sprintf("FRAGMENT#%s", f.ID().String()),
		EntityType: "FRAGMENT",
		FragmentID: f.ID().String(),
		MemoryID:   f.MemoryID().String(),
		Kind:       string(f.Kind()),
		Content:    f.Content(),
		CreatedAt:  f.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:  f.UpdatedAt().Format(time.RFC3339Nano),
		Version:    f.Version(),
	}
	if fi := f.File(); fi != nil {
		item.File = &fileItem{
			Name:      fi.Name,
			MediaType: fi.MediaType,
			Key:       fi.Key,
			URL:       fi.URL,
			Size:      fi.Size,
			Status:    string(fi.Status),
			FailCause: fi.FailCause,
		}
	}
	return item
}

func (item fragmentItem) toEntity() (*entities.Fragment, error) {
	id, err := valueobjects.NewFragmentIDFromString(item.FragmentID)
	if err != nil {
		return nil, err
	}
	memoryID, err := valueobjects.NewMemoryIDFromString(item.MemoryID)
	if err != nil {
		return nil, err
	}

	var file *entities.FileInfo
	if item.File != nil {
		file = &entities.FileInfo{
			Name:      item.File.Name,
			MediaType: item.File.MediaType,
			Key:       item.File.Key,
			URL:       item.File.URL,
			Size:      item.File.Size,
			Status:    entities.FileStatus(item.File.Status),
			FailCause: item.File.FailCause,
		}
	}

	createdAt, updatedAt, err := parseTimestamps(item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return entities.ReconstructFragment(
		id, memoryID,
		entities.FragmentKind(item.Kind), item.Content, file,
		createdAt, updatedAt, item.Version,
	)
}
