// Package handler serves the audit log to the master operator.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"retireplan/internal/policy"
	dErrors "retireplan/pkg/domain-errors"
	auditlog "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/requestcontext"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// listPath is the document path list queries are authorized against. The
// audit log rule does not depend on the entry, only on the caller.
const listPath = "audit_logs/list"

// Lister reads the audit log. auditlog.Store implementations satisfy it.
type Lister interface {
	List(ctx context.Context, q auditlog.Query) ([]auditlog.Entry, error)
}

// Authorizer decides reads. *policy.Evaluator implements it.
type Authorizer interface {
	Authorize(req policy.Request) policy.Decision
}

type listResponse struct {
	Entries []auditlog.Entry `json:"entries"`
}

type Handler struct {
	entries Lister
	authz   Authorizer
	logger  *slog.Logger
}

func New(entries Lister, authz Authorizer, logger *slog.Logger) *Handler {
	return &Handler{entries: entries, authz: authz, logger: logger}
}

// Register mounts the audit log routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/audit_logs", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)

	decision := h.authz.Authorize(policy.Request{Identity: caller, Op: policy.OpRead, Path: listPath})
	if !decision.Allowed {
		h.logger.InfoContext(ctx, "audit log read denied",
			"uid", caller.UID,
			"reason", decision.Reason,
		)
		if !caller.Authenticated() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "permission denied"))
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.entries.List(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list audit entries"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Entries: entries})
}

func parseQuery(r *http.Request) (auditlog.Query, error) {
	values := r.URL.Query()
	q := auditlog.Query{
		Collection:   values.Get("collection"),
		DocumentPath: values.Get("documentPath"),
		Limit:        DefaultLimit,
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return auditlog.Query{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		q.Limit = min(limit, MaxLimit)
	}
	return q, nil
}
