// README: Cost settings handlers: active, history, by version, create new version.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"freightquote/internal/modules/settings"
)

type SettingsHandler struct {
	settings *settings.Service
}

func NewSettingsHandler(svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{settings: svc}
}

// Active serves GET /api/settings/:scope/active.
func (h *SettingsHandler) Active(c *gin.Context) {
	scope, ok := pathScope(c)
	if !ok {
		return
	}
	cs, err := h.settings.GetActive(c.Request.Context(), scope)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cs)
}

func (h *SettingsHandler) History(c *gin.Context) {
	scope, ok := pathScope(c)
	if !ok {
		return
	}
	list, err := h.settings.GetHistory(c.Request.Context(), scope)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"scope": scope, "versions": list})
}

func (h *SettingsHandler) Version(c *gin.Context) {
	scope, ok := pathScope(c)
	if !ok {
		return
	}
	cs, err := h.settings.GetByVersion(c.Request.Context(), scope, c.Param("version"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cs)
}

// Create serves POST /api/settings/:scope. The body is a full rate table; version and audit fields are assigned.
func (h *SettingsHandler) Create(c *gin.Context) {
	scope, ok := pathScope(c)
	if !ok {
		return
	}
	var req settings.CostSettings
	if !bindJSON(c, &req) {
		return
	}
	cs, err := h.settings.CreateNewVersion(c.Request.Context(), scope, req, actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, cs)
}
