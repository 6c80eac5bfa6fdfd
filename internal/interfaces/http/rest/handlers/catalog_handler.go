package handlers

import (
	"net/http"
	"strconv"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/repository"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogHandler serves the public catalog reads.
type CatalogHandler struct {
	registry *repository.Registry
	logger   *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(registry *repository.Registry, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListProducts handles GET /api/products. With ?featured=true only featured
// products are returned.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	featured, _ := strconv.ParseBool(r.URL.Query().Get("featured"))

	load := h.registry.ProductCache.All
	if featured {
		load = h.registry.ProductCache.Featured
	}
	products, err := load(r.Context())
	if err != nil {
		respondAppError(h.logger, w, err, "Failed to load products")
		return
	}
	respondJSON(h.logger, w, http.StatusOK, products)
}

// GetProduct handles GET /api/products/{productID}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	product, err := h.registry.ProductCache.ByID(r.Context(), productID)
	if err != nil {
		respondAppError(h.logger, w, err, "Failed to load product")
		return
	}
	respondJSON(h.logger, w, http.StatusOK, product)
}

// ListCategories handles GET /api/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.registry.Files.Read(r.Context(), h.registry.Categories.FilePath())
	if apperrors.IsNotFound(err) {
		respondJSON(h.logger, w, http.StatusOK, []any{})
		return
	}
	if err != nil {
		respondAppError(h.logger, w, err, "Failed to load categories")
		return
	}
	respondJSON(h.logger, w, http.StatusOK, categories)
}

// ListCategoryProducts handles GET /api/categories/{categoryID}/products
func (h *CatalogHandler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	products, err := h.registry.ProductCache.ByCategory(r.Context(), categoryID)
	if err != nil {
		respondAppError(h.logger, w, err, "Failed to load products")
		return
	}
	respondJSON(h.logger, w, http.StatusOK, products)
}
