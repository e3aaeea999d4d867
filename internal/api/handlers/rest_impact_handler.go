package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cedctf/foodbridge-sub000/internal/services"
)

// RestImpactHandler serves donor impact records.
type RestImpactHandler struct {
	impacts services.IImpactService
}

func NewRestImpactHandler(impacts services.IImpactService) *RestImpactHandler {
	return &RestImpactHandler{impacts: impacts}
}

// GetImpact handles GET /v1/users/:id/impact. A user with no recorded impact
// gets a zeroed record.
func (h *RestImpactHandler) GetImpact(c *gin.Context) {
	impact, err := h.impacts.GetImpact(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, impact)
}
