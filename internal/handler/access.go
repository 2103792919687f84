package handlers

import (
	"github.com/FeliciaLa/coldcall-pro/internal/models"
	"github.com/FeliciaLa/coldcall-pro/pkg/middleware"
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/gin-gonic/gin"
)

// GetAccess reports the caller's entitlement state. It is advisory: the UI
// uses it to decide whether to show the call button or the paywall, but the
// session endpoint re-checks on every start.
func (h *Handlers) GetAccess(c *gin.Context) {
	status := models.CheckAccess(h.db, middleware.IdentityFrom(c))
	response.Success(c, "ok", status)
}
