package handlers

import (
	"github.com/FeliciaLa/coldcall-pro/pkg/response"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/gin-gonic/gin"
)

// ListScenarios returns the practice catalog. Persona prompts and voice
// config never leave the server; the scenario type hides them from JSON.
func (h *Handlers) ListScenarios(c *gin.Context) {
	response.Success(c, "ok", scenario.List())
}
