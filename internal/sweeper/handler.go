package sweeper

import (
	"context"
	"net/http"

	"readerhub/pkg/identity"
	httputil "readerhub/pkg/http"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type Runner interface {
	Sweep(ctx context.Context) (*model.SweepResult, error)
}

type Handler struct {
	runner Runner
	log    *logger.Logger
}

func NewHandler(runner Runner, log *logger.Logger) *Handler {
	return &Handler{runner: runner, log: log}
}

// Sweep runs one sweep on demand. Partial failures still answer 200 with the
// counts; the failures themselves are in the service log.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := identity.RequirePrivileged(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.runner.Sweep(r.Context())
	if err != nil && result == nil {
		h.writeError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Sweep", "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Sweep", "operation", "WriteError", "error", writeErr)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/sweep", h.Sweep)
}
