package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"keepsake-backend/application/commands"
	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	"keepsake-backend/application/queries"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/application/services"
	"keepsake-backend/application/uploads"
	"keepsake-backend/infrastructure/config"
	"keepsake-backend/infrastructure/messaging/eventbridge"
	"keepsake-backend/infrastructure/messaging/localbus"
	"keepsake-backend/infrastructure/persistence/dynamodb"
	"keepsake-backend/infrastructure/storage"
	"keepsake-backend/infrastructure/storage/fake"
	"keepsake-backend/infrastructure/storage/supabase"
	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/observability"
)

// publicListingTTL bounds how stale the cached public listing can get
const publicListingTTL = 30 * time.Second

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the metrics publisher. With metrics disabled
// the nil client turns every recording into a no-op.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("Keepsake/%s", cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideMemoryRepository creates the memory repository
func ProvideMemoryRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.MemoryRepository {
	return dynamodb.NewMemoryRepository(client, cfg.MemoriesTable, cfg.OwnerIndexName, logger)
}

// ProvideFragmentRepository creates the fragment repository
func ProvideFragmentRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.FragmentRepository {
	return dynamodb.NewFragmentRepository(client, cfg.FragmentsTable, cfg.MemoryIndexName, logger)
}

// ProvideAccountRepository creates the account repository
func ProvideAccountRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.AccountRepository {
	return dynamodb.NewAccountRepository(client, cfg.AccountsTable, cfg.EmailIndexName, logger)
}

// ProvideResourceLocker creates the DynamoDB-backed locker
func ProvideResourceLocker(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ResourceLocker {
	return dynamodb.NewResourceLocker(client, cfg.LocksTable, logger)
}

// ProvideEventForwarder creates the EventBridge relay the local bus
// forwards every published event to
func ProvideEventForwarder(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) *eventbridge.Publisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideEventBus creates the in-process event bus and subscribes the
// upload lifecycle manager to the save outcome events
func ProvideEventBus(forwarder *eventbridge.Publisher, lifecycle *uploads.LifecycleManager, logger *zap.Logger) ports.EventBus {
	eventBus := localbus.New(forwarder, logger)
	for _, eventType := range lifecycle.EventTypes() {
		eventBus.Subscribe(eventType, lifecycle)
	}
	return eventBus
}

// ProvideEventPublisher narrows the bus to the publishing side
func ProvideEventPublisher(eventBus ports.EventBus) ports.EventPublisher {
	return eventBus
}

// ProvideObjectStore selects the object storage backend
func ProvideObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "supabase":
		client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
		return supabase.NewStore(client, cfg.StorageBucket), nil
	case "fake":
		return fake.NewStore(cfg.StorageBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ProvideFileStorage wraps the object store with the async upload sink
func ProvideFileStorage(store storage.ObjectStore, publisher ports.EventPublisher, logger *zap.Logger) ports.FileStorage {
	return storage.NewSink(store, publisher, logger)
}

// ProvideLifecycleManager creates the upload lifecycle manager
func ProvideLifecycleManager(
	fragments ports.FragmentRepository,
	locker ports.ResourceLocker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *uploads.LifecycleManager {
	return uploads.NewLifecycleManager(fragments, locker, metrics, logger)
}

// ProvideCompositionService creates the composition service
func ProvideCompositionService(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.CompositionService {
	return services.NewCompositionService(memories, fragments, locker, publisher, logger)
}

// ProvideJWTValidator creates the token validator. Outside production a
// missing secret falls back to a fixed dev value so local runs work
// without setup; config validation rejects that in production.
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		secret = "keepsake-dev-secret"
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideInMemoryCache creates the query result cache
func ProvideInMemoryCache() ports.Cache {
	return NewInMemoryCache(publicListingTTL)
}

// ProvideCommandBus creates a command bus with every handler registered
func ProvideCommandBus(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	accounts ports.AccountRepository,
	fileStorage ports.FileStorage,
	locker ports.ResourceLocker,
	publisher ports.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(metrics),
	)

	createHandler := commands.NewCreateMemoryHandler(memories, publisher, logger)
	addHandler := commands.NewAddFragmentHandler(memories, fragments, fileStorage, locker, publisher, logger)
	updateMemoryHandler := commands.NewUpdateMemoryHandler(memories, logger)
	updateFragmentHandler := commands.NewUpdateFragmentHandler(memories, fragments, logger)
	sharingHandler := commands.NewSharingHandler(memories, accounts, logger)
	deleteMemoryHandler := commands.NewDeleteMemoryHandler(memories, fragments, fileStorage, locker, publisher, logger)
	deleteFragmentHandler := commands.NewDeleteFragmentHandler(memories, fragments, fileStorage, locker, publisher, logger)

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreateMemoryCommand{}, createHandler},
		{commands.AddTextFragmentCommand{}, addHandler},
		{commands.AddFileFragmentCommand{}, addHandler},
		{commands.UpdateMemoryMetadataCommand{}, updateMemoryHandler},
		{commands.PinMemoryCommand{}, updateMemoryHandler},
		{commands.UpdateFragmentContentCommand{}, updateFragmentHandler},
		{commands.GrantAccessCommand{}, sharingHandler},
		{commands.RevokeAccessCommand{}, sharingHandler},
		{commands.SetEveryoneReadCommand{}, sharingHandler},
		{commands.SetEveryoneEditCommand{}, sharingHandler},
		{commands.SetVisibilityCommand{}, sharingHandler},
		{commands.DeleteMemoryCommand{}, deleteMemoryHandler},
		{commands.DeleteFragmentCommand{}, deleteFragmentHandler},
		{commands.DeleteFragmentsCommand{}, deleteFragmentHandler},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, r.handler); err != nil {
			return nil, err
		}
	}

	return commandBus, nil
}

// ProvideQueryBus creates a query bus with every handler registered
func ProvideQueryBus(
	memories ports.MemoryRepository,
	fragments ports.FragmentRepository,
	cache ports.Cache,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()

	getMemoryHandler := queries.NewGetMemoryHandler(memories, fragments, logger)
	getFragmentHandler := queries.NewGetFragmentHandler(memories, fragments, logger)
	listHandler := queries.NewListMemoriesHandler(memories, cache, logger)

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.GetMemoryQuery{}, getMemoryHandler},
		{queries.GetFragmentQuery{}, getFragmentHandler},
		{queries.ListMemoriesQuery{}, listHandler},
		{queries.ListPublicMemoriesQuery{}, listHandler},
	}
	for _, r := range registrations {
		if err := queryBus.Register(r.query, r.handler); err != nil {
			return nil, err
		}
	}

	return queryBus, nil
}
