//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"go.uber.org/zap"
	"keepsake-backend/application/commands/bus"
	"keepsake-backend/application/ports"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/application/services"
	"keepsake-backend/application/uploads"
	"keepsake-backend/infrastructure/config"
	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Memories     ports.MemoryRepository
	Fragments    ports.FragmentRepository
	Accounts     ports.AccountRepository
	EventBus     ports.EventBus
	FileStorage  ports.FileStorage
	Locker       ports.ResourceLocker
	Cache        ports.Cache
	Metrics      *observability.Metrics
	Lifecycle    *uploads.LifecycleManager
	Composition  *services.CompositionService
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	JWTValidator *auth.JWTValidator
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideMetrics,
	ProvideMemoryRepository,
	ProvideFragmentRepository,
	ProvideAccountRepository,
	ProvideResourceLocker,
	ProvideEventForwarder,
	ProvideEventBus,
	ProvideEventPublisher,
	ProvideObjectStore,
	ProvideFileStorage,
	ProvideLifecycleManager,
	ProvideCompositionService,
	ProvideJWTValidator,
	ProvideInMemoryCache,
	ProvideCommandBus,
	ProvideQueryBus,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
