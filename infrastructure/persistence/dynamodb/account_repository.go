package dynamodb

import (
	"context"
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

// AccountRepository implements ports.AccountRepository using DynamoDB
type AccountRepository struct {
	client     *dynamodb.Client
	tableName  string
	emailIndex string
	logger     *zap.Logger
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(client *dynamodb.Client, tableName, emailIndex string, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		client:     client,
		tableName:  tableName,
		emailIndex: emailIndex,
		logger:     logger,
	}
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

type accountItem struct {
	PK          string `dynamodbav:"PK"`
	GSI1PK      string `dynamodbav:"GSI1PK"`
	EntityType  string `dynamodbav:"EntityType"`
	AccountID   string `dynamodbav:"AccountID"`
	Email       string `dynamodbav:"Email"`
	DisplayName string `dynamodbav:"DisplayName"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

// Load implements ports.AccountRepository
func (r *AccountRepository) Load(ctx context.Context, id valueobjects.AccountID) (*entities.Account, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", id.String())},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get account", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("account")
	}

	var item accountItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal account", err)
	}

	return item.toEntity()
}

// Save implements ports.AccountRepository
func (r *AccountRepository) Save(ctx context.Context, a *entities.Account) error {
	item := accountItem{
		PK:          fmt.Sprintf("ACCOUNT#%s", a.ID().String()),
		GSI1PK:      fmt.Sprintf("EMAIL#%s", a.Email()),
		EntityType:  "ACCOUNT",
		AccountID:   a.ID().String(),
		Email:       a.Email(),
		DisplayName: a.DisplayName(),
		CreatedAt:   a.CreatedAt().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal account", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("failed to save account",
			zap.Error(err),
			zap.String("account_id", a.ID().String()))
		return pkgerrors.NewDatabaseError("put account", err)
	}

	return nil
}

// FindByEmail implements ports.AccountRepository
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entities.Account, error) {
	keyEx := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("EMAIL#%s", email)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build email query", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.emailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query account by email", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("account")
	}

	var item accountItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal account", err)
	}

	return item.toEntity()
}

func (item accountItem) toEntity() (*entities.Account, error) {
	id, err := valueobjects.NewAccountIDFromString(item.AccountID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse CreatedAt", err)
	}
	return entities.ReconstructAccount(id, item.Email, item.DisplayName, createdAt), nil
}
