// Package handler lets a signed-in user record a password change.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/requestcontext"
)

// Service is the security surface the handler needs.
type Service interface {
	RecordPassword(ctx context.Context, address, password string) error
}

type recordPasswordRequest struct {
	Password string `json:"password"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the security routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/security/password", h.handleRecordPassword)
}

func (h *Handler) handleRecordPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if !caller.Authenticated() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if caller.Anonymous || caller.Email == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "an email identity is required"))
		return
	}

	var req recordPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RecordPassword(ctx, caller.Email, req.Password); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "record password failed",
				"request_id", requestcontext.RequestID(ctx),
				"uid", caller.UID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
