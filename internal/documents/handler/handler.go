// Package handler exposes the client document gateway over HTTP. The
// document path is the remainder of the URL after /v1/documents/.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/requestcontext"
)

// Gateway is the document surface the handler needs. *documents.Gateway
// implements it.
type Gateway interface {
	Get(ctx context.Context, caller domain.Identity, path string) (map[string]any, error)
	Create(ctx context.Context, caller domain.Identity, path string, data map[string]any) (map[string]any, error)
	Update(ctx context.Context, caller domain.Identity, path string, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, caller domain.Identity, path string) error
}

type documentResponse struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

type Handler struct {
	gateway Gateway
	logger  *slog.Logger
}

func New(gateway Gateway, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, logger: logger}
}

// Register mounts the document routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/documents", func(r chi.Router) {
		r.Get("/*", h.handleGet)
		r.Post("/*", h.handleCreate)
		r.Put("/*", h.handleUpdate)
		r.Delete("/*", h.handleDelete)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := chi.URLParam(r, "*")
	data, err := h.gateway.Get(ctx, requestcontext.Caller(ctx), path)
	if err != nil {
		h.fail(ctx, w, "get", path, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentResponse{Path: path, Data: data})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusCreated, h.gateway.Create)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, h.gateway.Update)
}

type writeFunc func(ctx context.Context, caller domain.Identity, path string, data map[string]any) (map[string]any, error)

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, fn writeFunc) {
	ctx := r.Context()
	path := chi.URLParam(r, "*")

	var body map[string]any
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if body == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "document body must be a JSON object"))
		return
	}

	data, err := fn(ctx, requestcontext.Caller(ctx), path, body)
	if err != nil {
		h.fail(ctx, w, r.Method, path, err)
		return
	}
	httputil.WriteJSON(w, status, documentResponse{Path: path, Data: data})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := chi.URLParam(r, "*")
	if err := h.gateway.Delete(ctx, requestcontext.Caller(ctx), path); err != nil {
		h.fail(ctx, w, "delete", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op, path string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "document operation failed",
			"request_id", requestcontext.RequestID(ctx),
			"op", op,
			"path", path,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
