package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"keepsake-backend/application/commands/bus"
	querybus "keepsake-backend/application/queries/bus"
	"keepsake-backend/application/services"
	"keepsake-backend/interfaces/http/rest/handlers"
	"keepsake-backend/interfaces/http/rest/middleware"
)

// Router creates and configures the HTTP router
type Router struct {
	commandBus    *bus.CommandBus
	queryBus      *querybus.QueryBus
	composition   *services.CompositionService
	authenticator *middleware.Authenticator
	enableCORS    bool
	logger        *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	composition *services.CompositionService,
	authenticator *middleware.Authenticator,
	enableCORS bool,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus:    commandBus,
		queryBus:      queryBus,
		composition:   composition,
		authenticator: authenticator,
		enableCORS:    enableCORS,
		logger:        logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.keepsake.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	memoryHandler := handlers.NewMemoryHandler(rt.commandBus, rt.queryBus, rt.composition, rt.logger)
	fragmentHandler := handlers.NewFragmentHandler(rt.commandBus, rt.queryBus, rt.logger)
	sharingHandler := handlers.NewSharingHandler(rt.commandBus, rt.logger)
	publicHandler := handlers.NewPublicHandler(rt.queryBus, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		// Anonymous browsing surface; token attached when present.
		r.Group(func(r chi.Router) {
			r.Use(rt.authenticator.Optional)

			r.Get("/public/memories", publicHandler.ListPublicMemories)
			r.Get("/public/memories/{memoryID}", publicHandler.GetPublicMemory)
			r.Get("/public/memories/{memoryID}/fragments/{fragmentID}", publicHandler.GetPublicFragment)
		})

		// Everything else requires a signed-in caller.
		r.Group(func(r chi.Router) {
			r.Use(rt.authenticator.Require)

			r.Route("/memories", func(r chi.Router) {
				r.Post("/", memoryHandler.CreateMemory)
				r.Get("/", memoryHandler.ListMemories)
				r.Get("/{memoryID}", memoryHandler.GetMemory)
				r.Patch("/{memoryID}", memoryHandler.UpdateMemory)
				r.Delete("/{memoryID}", memoryHandler.DeleteMemory)
				r.Put("/{memoryID}/pin", memoryHandler.PinMemory)

				r.Post("/{memoryID}/merge", memoryHandler.MergeMemories)
				r.Post("/{memoryID}/split", memoryHandler.SplitMemory)
				r.Post("/{memoryID}/shatter", memoryHandler.ShatterMemory)

				r.Post("/{memoryID}/fragments", fragmentHandler.AddTextFragment)
				r.Post("/{memoryID}/fragments/file", fragmentHandler.AddFileFragment)
				r.Post("/{memoryID}/fragments/bulk-delete", fragmentHandler.DeleteFragments)
				r.Get("/{memoryID}/fragments/{fragmentID}", fragmentHandler.GetFragment)

				r.Put("/{memoryID}/visibility", sharingHandler.SetVisibility)
				r.Put("/{memoryID}/everyone-read", sharingHandler.SetEveryoneRead)
				r.Put("/{memoryID}/everyone-edit", sharingHandler.SetEveryoneEdit)
				r.Post("/{memoryID}/grants", sharingHandler.GrantAccess)
				r.Delete("/{memoryID}/grants/{accountID}", sharingHandler.RevokeAccess)
			})

			r.Route("/fragments", func(r chi.Router) {
				r.Put("/{fragmentID}", fragmentHandler.UpdateFragment)
				r.Delete("/{fragmentID}", fragmentHandler.DeleteFragment)
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
