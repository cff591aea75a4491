// Package handler exposes role assignment over HTTP. setUserRole follows
// the callable-function envelope: {"data": ...} in, {"result": ...} or
// {"error": {"status", "message"}} out.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retireplan/internal/claims"
	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/requestcontext"
)

// Service is the claims surface the handler needs.
type Service interface {
	SetUserRole(ctx context.Context, caller domain.Identity, uid, role string) (claims.SetRoleResult, error)
	GetClaim(ctx context.Context, caller domain.Identity, uid string) (claims.Claim, error)
}

// Callable error statuses.
const (
	StatusPermissionDenied = "PERMISSION_DENIED"
	StatusInvalidArgument  = "INVALID_ARGUMENT"
	StatusUnauthenticated  = "UNAUTHENTICATED"
	StatusNotFound         = "NOT_FOUND"
	StatusInternal         = "INTERNAL"
)

type setUserRoleRequest struct {
	Data struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	} `json:"data"`
}

type callableResult struct {
	Result any `json:"result"`
}

type callableError struct {
	Error callableErrorBody `json:"error"`
}

type callableErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the claims routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/callable/setUserRole", h.handleSetUserRole)
	r.Get("/v1/claims/{uid}", h.handleGetClaim)
}

func (h *Handler) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req setUserRoleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid setUserRole request",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeCallableError(w, dErrors.New(dErrors.CodeInvalidInput, "request body must be {\"data\": {\"uid\", \"role\"}}"))
		return
	}

	result, err := h.service.SetUserRole(ctx, requestcontext.Caller(ctx), req.Data.UID, req.Data.Role)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "setUserRole failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		} else {
			h.logger.WarnContext(ctx, "setUserRole rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		writeCallableError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, callableResult{Result: result})
}

func (h *Handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claim, err := h.service.GetClaim(ctx, requestcontext.Caller(ctx), chi.URLParam(r, "uid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim)
}

func writeCallableError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := callableErrorBody{Status: callableStatus(code), Message: "internal"}
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		body.Message = de.Message
	}
	httputil.WriteJSON(w, httputil.StatusFor(code), callableError{Error: body})
}

func callableStatus(code dErrors.Code) string {
	switch code {
	case dErrors.CodeForbidden:
		return StatusPermissionDenied
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return StatusInvalidArgument
	case dErrors.CodeUnauthorized:
		return StatusUnauthenticated
	case dErrors.CodeNotFound:
		return StatusNotFound
	default:
		return StatusInternal
	}
}
