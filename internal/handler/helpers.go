package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

// msgRateLimited is shown to the intranet user when the provider answers 429.
const msgRateLimited = "Limite de requisições do provedor de IA atingido. Aguarde alguns instantes e tente novamente."

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var missingConfig *domain.ErrMissingConfig
	var rateLimited *domain.ErrRateLimited
	var provider *domain.ErrProvider

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missingConfig):
		logger.Error("missing configuration", zap.String("key", missingConfig.Key))
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &rateLimited):
		logger.Warn("llm provider rate limited", zap.String("provider", rateLimited.Provider))
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.As(err, &provider):
		logger.Error("llm provider error",
			zap.String("provider", provider.Provider),
			zap.Int("status", provider.Status),
		)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
