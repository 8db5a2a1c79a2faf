// README: Base handler utilities (JSON helpers, error mapping, actor lookup).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freightquote/internal/http/middleware"
	"freightquote/internal/modules/settings"
	"freightquote/internal/types"
)

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps the shared error taxonomy onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	var ve *types.ValidationError
	switch {
	case errors.Is(err, types.ErrValidation):
		resp := errorResponse{Error: err.Error()}
		if errors.As(err, &ve) {
			resp.Problems = ve.Problems
		}
		writeJSON(c, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrCollaborator):
		writeError(c, http.StatusBadGateway, "upstream dependency failed")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bindJSON decodes the body and answers 400 on malformed JSON.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func actor(c *gin.Context) string {
	return middleware.CallerUID(c)
}

func pathScope(c *gin.Context) (string, bool) {
	scope := c.Param("scope")
	if err := settings.ValidateScope(scope); err != nil {
		writeError(c, http.StatusBadRequest, "invalid scope")
		return "", false
	}
	return scope, true
}

func pathID(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if id == "" || len(id) > 64 {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}
