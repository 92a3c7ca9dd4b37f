// Package dynamodb implements the persistence ports on DynamoDB.
// Each entity kind lives in its own table; owner-scoped queries go
// through a GSI keyed on the owner id.
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

// MemoryRepository implements ports.MemoryRepository using DynamoDB
type MemoryRepository struct {
	client     *dynamodb.Client
	tableName  string
	ownerIndex string
	logger     *zap.Logger
}

// NewMemoryRepository creates a new MemoryRepository
func NewMemoryRepository(client *dynamodb.Client, tableName, ownerIndex string, logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		client:     client,
		tableName:  tableName,
		ownerIndex: ownerIndex,
		logger:     logger,
	}
}

var _ ports.MemoryRepository = (*MemoryRepository)(nil)

// memoryItem represents the DynamoDB item structure for a memory
type memoryItem struct {
	PK           string   `dynamodbav:"PK"`
	GSI1PK       string   `dynamodbav:"GSI1PK"`
	GSI1SK       string   `dynamodbav:"GSI1SK"`
	EntityType   string   `dynamodbav:"EntityType"`
	MemoryID     string   `dynamodbav:"MemoryID"`
	OwnerID      string   `dynamodbav:"OwnerID"`
	Title        string   `dynamodbav:"Title"`
	Public       bool     `dynamodbav:"Public"`
	Draft        bool     `dynamodbav:"Draft"`
	EveryoneRead bool     `dynamodbav:"EveryoneRead"`
	EveryoneEdit bool     `dynamodbav:"EveryoneEdit"`
	ReaderIDs    []string `dynamodbav:"ReaderIDs,omitempty"`
	EditorIDs    []string `dynamodbav:"EditorIDs,omitempty"`
	FragmentIDs  []string `dynamodbav:"FragmentIDs,omitempty"`
	Tags         []string `dynamodbav:"Tags,omitempty"`
	PinnedBy     []string `dynamodbav:"PinnedBy,omitempty"`
	CreatedAt    string   `dynamodbav:"CreatedAt"`
	UpdatedAt    string   `dynamodbav:"UpdatedAt"`
	Version      int      `dynamodbav:"Version"`
}

func memoryKey(id valueobjects.MemoryID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("MEMORY#%s", id.String())},
	}
}

// Load implements ports.MemoryRepository
func (r *MemoryRepository) Load(ctx context.Context, id valueobjects.MemoryID) (*entities.Memory, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       memoryKey(id),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get memory", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("memory")
	}

	var item memoryItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal memory", err)
	}

	return item.toEntity()
}

// Save implements ports.MemoryRepository
func (r *MemoryRepository) Save(ctx context.Context, m *entities.Memory) error {
	item := newMemoryItem(m)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal memory", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("failed to save memory",
			zap.Error(err),
			zap.String("memory_id", m.ID().String()))
		return pkgerrors.NewDatabaseError("put memory", err)
	}

	return nil
}

// Delete implements ports.MemoryRepository
func (r *MemoryRepository) Delete(ctx context.Context, id valueobjects.MemoryID) error {
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("build delete expression", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       memoryKey(id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("memory")
		}
		return pkgerrors.NewDatabaseError("delete memory", err)
	}

	return nil
}

// FindByOwner implements ports.MemoryRepository
func (r *MemoryRepository) FindByOwner(ctx context.Context, owner valueobjects.AccountID) ([]*entities.Memory, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("OWNER#%s", owner.String())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build owner query", err)
	}

	var out []*entities.Memory
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.ownerIndex),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query memories by owner", err)
		}

		memories, err := r.unmarshalItems(result.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, memories...)

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return out, nil
}

// FindSharedWith implements ports.MemoryRepository
func (r *MemoryRepository) FindSharedWith(ctx context.Context, account valueobjects.AccountID) ([]*entities.Memory, error) {
	id := account.String()
	filter := expression.Name("OwnerID").NotEqual(expression.Value(id)).
		And(expression.Or(
			expression.Name("ReaderIDs").Contains(id),
			expression.Name("EditorIDs").Contains(id),
		))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build shared filter", err)
	}

	return r.scan(ctx, expr, 0)
}

// FindPublic implements ports.MemoryRepository
func (r *MemoryRepository) FindPublic(ctx context.Context, limit int) ([]*entities.Memory, error) {
	filter := expression.Name("Public").Equal(expression.Value(true)).
		And(expression.Name("Draft").Equal(expression.Value(false)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build public filter", err)
	}

	return r.scan(ctx, expr, limit)
}

func (r *MemoryRepository) scan(ctx context.Context, expr expression.Expression, limit int) ([]*entities.Memory, error) {
	var out []*entities.Memory
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("scan memories", err)
		}

		memories, err := r.unmarshalItems(result.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, memories...)

		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return out, nil
}

func (r *MemoryRepository) unmarshalItems(items []map[string]types.AttributeValue) ([]*entities.Memory, error) {
	out := make([]*entities.Memory, 0, len(items))
	for _, raw := range items {
		var item memoryItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("skipping unreadable memory item", zap.Error(err))
			continue
		}
		m, err := item.toEntity()
		if err != nil {
			r.logger.Warn("skipping invalid memory item",
				zap.String("memory_id", item.MemoryID),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func newMemoryItem(m *entities.Memory) memoryItem {
	readers := m.Readers()
	editors := m.Editors()
	return memoryItem{
		PK:           fmt.Sprintf("MEMORY#%s", m.ID().String()),
		GSI1PK:       fmt.Sprintf("OWNER#%s", m.OwnerID().String()),
		GSI1SK:       fmt.Sprintf("MEMORY#%s", m.ID().String()),
		EntityType:   "MEMORY",
		MemoryID:     m.ID().String(),
		OwnerID:      m.OwnerID().String(),
		Title:        m.Title(),
		Public:       m.IsPublic(),
		Draft:        m.IsDraft(),
		EveryoneRead: readers.IsEveryone(),
		EveryoneEdit: editors.IsEveryone(),
		ReaderIDs:    accountStrings(readers.Accounts()),
		EditorIDs:    accountStrings(editors.Accounts()),
		FragmentIDs:  fragmentStrings(m.FragmentIDs()),
		Tags:         m.Tags(),
		PinnedBy:     accountStrings(m.PinnedBy()),
		CreatedAt:    m.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:    m.UpdatedAt().Format(time.RFC3339Nano),
		Version:      m.Version(),
	}
}

func (item memoryItem) toEntity() (*entities.Memory, error) {
	id, err := valueobjects.NewMemoryIDFromString(item.MemoryID)
	if err != nil {
		return nil, err
	}
	owner, err := valueobjects.NewAccountIDFromString(item.OwnerID)
	if err != nil {
		return nil, err
	}

	readers, err := parseGrantSet(item.EveryoneRead, item.ReaderIDs)
	if err != nil {
		return nil, err
	}
	editors, err := parseGrantSet(item.EveryoneEdit, item.EditorIDs)
	if err != nil {
		return nil, err
	}

	fragmentIDs := make([]valueobjects.FragmentID, 0, len(item.FragmentIDs))
	for _, raw := range item.FragmentIDs {
		fid, err := valueobjects.NewFragmentIDFromString(raw)
		if err != nil {
			return nil, err
		}
		fragmentIDs = append(fragmentIDs, fid)
	}

	pinnedBy, err := parseAccounts(item.PinnedBy)
	if err != nil {
		return nil, err
	}

	createdAt, updatedAt, err := parseTimestamps(item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return entities.ReconstructMemory(
		id, owner, item.Title,
		item.Public, item.Draft,
		readers, editors,
		fragmentIDs, item.Tags, pinnedBy,
		createdAt, updatedAt, item.Version,
	)
}

func parseGrantSet(everyone bool, ids []string) (valueobjects.GrantSet, error) {
	if everyone {
		return valueobjects.EveryoneGrant(), nil
	}
	accounts, err := parseAccounts(ids)
	if err != nil {
		return valueobjects.GrantSet{}, err
	}
	return valueobjects.GrantSetOf(accounts...), nil
}

func parseAccounts(ids []string) ([]valueobjects.AccountID, error) {
	out := make([]valueobjects.AccountID, 0, len(ids))
	for _, raw := range ids {
		id, err := valueobjects.NewAccountIDFromString(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseTimestamps(created, updated string) (time.Time, time.Time, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.NewDatabaseError("parse CreatedAt", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.NewDatabaseError("parse UpdatedAt", err)
	}
	return createdAt, updatedAt, nil
}

func accountStrings(ids []valueobjects.AccountID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func fragmentStrings(ids []valueobjects.FragmentID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
