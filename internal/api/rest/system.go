package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// GET /api/v1/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/machine-types/reload
func (s *Server) reloadMachineTypes(c *gin.Context) {
	if err := s.lm.ReloadMachineTypes(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("MACHINE_TYPES_422", "Failed to reload machine types", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Machine types reloaded",
		"machineTypes": s.lm.GetCurrentStatus().MachineTypes,
	})
}
