package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"keepsake-backend/application/ports"
	"keepsake-backend/domain/core/valueobjects"
	pkgerrors "keepsake-backend/pkg/errors"
)

const (
	lockDuration  = 30 * time.Second
	retryInterval = 100 * time.Millisecond
)

var errLockHeld = errors.New("lock already held")

// ResourceLocker implements ports.ResourceLocker with DynamoDB
// conditional writes. Locks carry a TTL so a crashed process cannot
// wedge a resource forever.
type ResourceLocker struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewResourceLocker creates a new ResourceLocker
func NewResourceLocker(client *dynamodb.Client, tableName string, logger *zap.Logger) *ResourceLocker {
	return &ResourceLocker{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ ports.ResourceLocker = (*ResourceLocker)(nil)

// LockMemory implements ports.ResourceLocker
func (l *ResourceLocker) LockMemory(ctx context.Context, id valueobjects.MemoryID) (ports.UnlockFunc, error) {
	return l.acquireWithRetry(ctx, "memory:"+id.String())
}

// LockMemoryPair implements ports.ResourceLocker. Both locks are taken
// in ascending memory-id order so overlapping pairs cannot deadlock.
func (l *ResourceLocker) LockMemoryPair(ctx context.Context, a, b valueobjects.MemoryID) (ports.UnlockFunc, error) {
	if b.Less(a) {
		a, b = b, a
	}

	unlockA, err := l.acquireWithRetry(ctx, "memory:"+a.String())
	if err != nil {
		return nil, err
	}
	unlockB, err := l.acquireWithRetry(ctx, "memory:"+b.String())
	if err != nil {
		unlockA()
		return nil, err
	}

	return func() {
		unlockB()
		unlockA()
	}, nil
}

// LockFragment implements ports.ResourceLocker
func (l *ResourceLocker) LockFragment(ctx context.Context, id valueobjects.FragmentID) (ports.UnlockFunc, error) {
	return l.acquireWithRetry(ctx, "fragment:"+id.String())
}

func (l *ResourceLocker) acquireWithRetry(ctx context.Context, resource string) (ports.UnlockFunc, error) {
	interval := retryInterval
	for {
		unlock, err := l.acquire(ctx, resource)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.NewConflictError(fmt.Sprintf("timed out waiting for lock on %s", resource))
		case <-time.After(interval):
			if interval < time.Second {
				interval = time.Duration(float64(interval) * 1.5)
			}
		}
	}
}

func (l *ResourceLocker) acquire(ctx context.Context, resource string) (ports.UnlockFunc, error) {
	lockID := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(lockDuration)

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", resource)},
		"LockID":     &types.AttributeValueMemberS{Value: lockID},
		"AcquiredAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
		"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, errLockHeld
		}
		return nil, pkgerrors.NewDatabaseError("acquire lock", err)
	}

	return func() {
		l.release(resource, lockID)
	}, nil
}

// release deletes the lock only if we still own it. Running past the
// TTL means another process may hold the resource now; the conditional
// delete makes that case a no-op.
func (l *ResourceLocker) release(resource, lockID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", resource)},
		},
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			l.logger.Warn("lock expired before release", zap.String("resource", resource))
			return
		}
		l.logger.Error("failed to release lock",
			zap.String("resource", resource),
			zap.Error(err))
	}
}
