package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status and the error taxonomy. Internal
// failures are logged and reported without their cause.
func WriteError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		message = "internal server error"
		if errors.Is(err, domain.ErrLedgerCommit) {
			message = domain.ErrLedgerCommit.Error()
		}
	}
	WriteJSON(w, status, ErrorResponse{Error: message, Code: domain.Code(err)})
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrWalletConfigMissing):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
