package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tenant-gate/internal/domain"
)

// Error is the JSON body of every error response.
type Error struct {
	Code         int    `json:"code"`
	Reason       string `json:"reason"`
	Message      string `json:"message"`
	CurrentUsage *int64 `json:"current_usage,omitempty"`
	Limit        *int64 `json:"limit,omitempty"`
}

// errorFromDomain maps domain errors to an HTTP status and reason code.
// Unknown errors become a 500 without leaking their text.
func errorFromDomain(err error) Error {
	var (
		credential    *domain.CredentialError
		authorization *domain.AuthorizationError
		quota         *domain.QuotaError
		resolution    *domain.ResolutionError
		store         *domain.StoreError
		notFound      *domain.NotFoundError
		accessDenied  *domain.AccessDeniedError
		validation    *domain.ValidationError
		conflict      *domain.ConflictError
	)

	switch {
	case errors.As(err, &credential):
		return Error{Code: http.StatusUnauthorized, Reason: string(credential.Code), Message: credential.Message}
	case errors.As(err, &authorization):
		status := http.StatusForbidden
		switch authorization.Code {
		case domain.AuthorizationTenantNotFound:
			status = http.StatusNotFound
		case domain.AuthorizationAlreadyImpersonating:
			status = http.StatusConflict
		}
		return Error{Code: status, Reason: string(authorization.Code), Message: authorization.Message}
	case errors.As(err, &quota):
		current, limit := quota.CurrentUsage, quota.Limit
		return Error{
			Code: http.StatusTooManyRequests, Reason: domain.QuotaLimitExceeded, Message: quota.Message,
			CurrentUsage: &current, Limit: &limit,
		}
	case errors.As(err, &resolution):
		return Error{Code: http.StatusInternalServerError, Reason: string(resolution.Code), Message: resolution.Message}
	case errors.As(err, &store):
		return Error{Code: http.StatusServiceUnavailable, Reason: "STORE_UNAVAILABLE", Message: "a backing store is unavailable; retry later"}
	case errors.As(err, &notFound):
		return Error{Code: http.StatusNotFound, Reason: "NOT_FOUND", Message: notFound.Message}
	case errors.As(err, &accessDenied):
		return Error{Code: http.StatusForbidden, Reason: "ACCESS_DENIED", Message: accessDenied.Message}
	case errors.As(err, &validation):
		return Error{Code: http.StatusBadRequest, Reason: "INVALID_ARGUMENT", Message: validation.Message}
	case errors.As(err, &conflict):
		return Error{Code: http.StatusConflict, Reason: "CONFLICT", Message: conflict.Message}
	default:
		return Error{Code: http.StatusInternalServerError, Reason: "INTERNAL", Message: "internal error"}
	}
}

// WriteError renders err as a JSON error response. It matches
// middleware.ErrorWriter so the auth and metering middleware answer in the
// same shape as the handlers.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorFromDomain(err)
	if body.Code >= http.StatusInternalServerError {
		slog.Default().Error("request failed",
			"path", r.URL.Path, "status", body.Code, "reason", body.Reason, "error", err)
	}
	if body.Code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeJSON(w, body.Code, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
