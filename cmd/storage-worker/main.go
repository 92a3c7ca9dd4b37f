// Command storage-worker consumes fragment save outcome events from
// EventBridge and applies them to stored fragments. It backs the API
// deployment where the upload sink and the API handler run in separate
// processes, so outcomes must travel through the external bus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"keepsake-backend/domain/events"
	"keepsake-backend/infrastructure/config"
	"keepsake-backend/infrastructure/di"
)

var container *di.Container

func init() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
}

// Handler processes a single EventBridge delivery. Unknown detail types
// are acknowledged without action so a misrouted rule cannot wedge the
// queue; decode failures and apply failures are returned for redelivery.
func Handler(ctx context.Context, event awsevents.CloudWatchEvent) error {
	logger := container.Logger.With(
		zap.String("detail_type", event.DetailType),
		zap.String("event_id", event.ID),
	)

	var domainEvent events.DomainEvent
	switch event.DetailType {
	case events.TypeSaveStarted:
		var e events.FragmentSaveStarted
		if err := json.Unmarshal(event.Detail, &e); err != nil {
			return fmt.Errorf("decode %s event: %w", event.DetailType, err)
		}
		domainEvent = e
	case events.TypeSaveSucceeded:
		var e events.FragmentSaveSucceeded
		if err := json.Unmarshal(event.Detail, &e); err != nil {
			return fmt.Errorf("decode %s event: %w", event.DetailType, err)
		}
		domainEvent = e
	case events.TypeSaveFailed:
		var e events.FragmentSaveFailed
		if err := json.Unmarshal(event.Detail, &e); err != nil {
			return fmt.Errorf("decode %s event: %w", event.DetailType, err)
		}
		domainEvent = e
	default:
		logger.Debug("ignoring unhandled event type")
		return nil
	}

	if err := container.Lifecycle.HandleEvent(ctx, domainEvent); err != nil {
		logger.Error("failed to apply save outcome", zap.Error(err))
		return err
	}

	logger.Info("applied save outcome",
		zap.String("aggregate_id", domainEvent.GetAggregateID()))
	return nil
}

func main() {
	lambda.Start(Handler)
}
