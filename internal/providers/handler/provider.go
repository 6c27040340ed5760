package handler

import (
	"net/http"

	"readerhub/internal/providers/service"
	httputil "readerhub/pkg/http"
	"readerhub/pkg/logger"
	"readerhub/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ProviderHandler struct {
	service service.ProviderService
	log     *logger.Logger
}

func NewProviderHandler(service service.ProviderService, log *logger.Logger) *ProviderHandler {
	return &ProviderHandler{
		service: service,
		log:     log,
	}
}

func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var provider model.Provider
	if err := httputil.DecodeJSON(r, &provider); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := h.service.Create(r.Context(), &provider); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, provider); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *ProviderHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	provider, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, provider); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ProviderHandler) UpdateFeeds(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var upd model.ProviderFeedsUpdate
	if err := httputil.DecodeJSON(r, &upd); err != nil {
		h.writeError(w, "UpdateFeeds", err)
		return
	}

	if err := h.service.UpdateFeeds(r.Context(), ps.ByName("id"), &upd); err != nil {
		h.writeError(w, "UpdateFeeds", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ProviderHandler) Readiness(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.service.Readiness(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Readiness", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Readiness", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ProviderHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ProviderHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/providers", h.Create)
	router.GET("/api/v1/providers/id/:id", h.GetByID)
	router.PUT("/api/v1/providers/id/:id/feeds", h.UpdateFeeds)
	router.GET("/api/v1/providers/id/:id/readiness", h.Readiness)
}
