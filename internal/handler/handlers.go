package handler

import (
	"collab_workspace/internal/hub"
	"collab_workspace/internal/service"
	"collab_workspace/pkg/logger"
)

type Handlers struct {
	Health *HealthHandler
	Room   *RoomHandler
	User   *UserHandler
}

func NewHandlers(services *service.Services, h *hub.Hub, log logger.Logger) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(h),
		Room:   NewRoomHandler(services.Room, log),
		User:   NewUserHandler(services.User, log),
	}
}
