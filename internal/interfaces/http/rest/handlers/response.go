// Package handlers implements the catalog's HTTP handlers. They consume the
// repositories and cache managers and translate typed errors into status
// codes.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "catalog-backend/internal/errors"

	"go.uber.org/zap"
)

func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func respondError(logger *zap.Logger, w http.ResponseWriter, status int, message string) {
	respondJSON(logger, w, status, map[string]any{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

// respondAppError maps err to its status code. Internal details of server
// errors are logged, not returned.
func respondAppError(logger *zap.Logger, w http.ResponseWriter, err error, message string) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.String("type", string(apperrors.TypeOf(err))), zap.Error(err))
		respondError(logger, w, status, message)
		return
	}
	respondError(logger, w, status, err.Error())
}
