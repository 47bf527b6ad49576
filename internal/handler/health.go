package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab_workspace/internal/hub"
)

type HealthHandler struct {
	hub *hub.Hub
}

func NewHealthHandler(h *hub.Hub) *HealthHandler {
	return &HealthHandler{hub: h}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      "collab-workspace",
		"active_rooms": h.hub.ActiveRooms(),
	})
}
