package handlers

import (
	"net/http"

	"catalog-backend/internal/infrastructure/persistence/jsonfile"
	"catalog-backend/internal/repository"

	"go.uber.org/zap"
)

// AdminHandler exposes cache and storage maintenance.
type AdminHandler struct {
	registry *repository.Registry
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(registry *repository.Registry, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		logger:   logger,
	}
}

// CacheStats handles GET /api/admin/cache
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(h.logger, w, http.StatusOK, h.registry.CacheStats())
}

// ClearCache handles DELETE /api/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.registry.ClearCaches()
	respondJSON(h.logger, w, http.StatusOK, map[string]any{
		"cleared": true,
		"cache":   h.registry.CacheStats(),
	})
}

type storageReport struct {
	Files      map[string]jsonfile.FileStats        `json:"files"`
	Validation map[string]jsonfile.ValidationReport `json:"validation"`
	Healthy    bool                                 `json:"healthy"`
	Error      string                               `json:"error,omitempty"`
}

// StorageStats handles GET /api/admin/storage. Files that cannot be loaded
// are reported through validation rather than failing the request.
func (h *AdminHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	validation := h.registry.Validate(r.Context())
	files, err := h.registry.StorageStats(r.Context())

	report := storageReport{
		Files:      files,
		Validation: validation,
		Healthy:    err == nil,
	}
	for _, v := range validation {
		if !v.IsValid {
			report.Healthy = false
		}
	}
	if err != nil {
		h.logger.Warn("Storage stats incomplete", zap.Error(err))
		report.Error = err.Error()
	}
	respondJSON(h.logger, w, http.StatusOK, report)
}
