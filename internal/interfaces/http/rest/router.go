package rest

import (
	"net/http"

	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/interfaces/http/rest/handlers"
	"catalog-backend/internal/interfaces/http/rest/middleware"
	"catalog-backend/internal/repository"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	registry    *repository.Registry
	metrics     *observability.Collector
	metricsPath string
	logger      *zap.Logger
}

// NewRouter creates a new router instance. A nil collector disables the
// metrics endpoint.
func NewRouter(
	registry *repository.Registry,
	metrics *observability.Collector,
	metricsPath string,
	logger *zap.Logger,
) *Router {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Router{
		registry:    registry,
		metrics:     metrics,
		metricsPath: metricsPath,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger, "/health", rt.metricsPath))

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle(rt.metricsPath, rt.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		catalog := handlers.NewCatalogHandler(rt.registry, rt.logger)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalog.ListProducts)
			r.Get("/{productID}", catalog.GetProduct)
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", catalog.ListCategories)
			r.Get("/{categoryID}/products", catalog.ListCategoryProducts)
		})

		admin := handlers.NewAdminHandler(rt.registry, rt.logger)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/cache", admin.CacheStats)
			r.Delete("/cache", admin.ClearCache)
			r.Get("/storage", admin.StorageStats)
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
