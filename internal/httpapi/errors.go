// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

const internalErrorMessage = "internal server error"

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidInput, auth.KindWeakCredential:
		return http.StatusBadRequest
	case auth.KindUnauthorized, auth.KindProviderResolution:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError renders err. Dependency failures are logged with their full
// context and answered with a generic message.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	status := StatusFor(kind)

	message := internalErrorMessage
	switch kind {
	case auth.KindDependency:
		errutil.LogErrorContext(ctx, h.logger, "request failed", err)
	case auth.KindProviderResolution:
		message = "provider sign-in failed"
		h.logger.WarnContext(ctx, "provider resolution failed", "error", err)
	default:
		message = err.Error()
		h.logger.DebugContext(ctx, "request rejected", "kind", kind.String(), "error", err)
	}

	if werr := writeJSON(w, status, ErrorBody{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	}); werr != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
	}
}
