package service

import (
	"collab_workspace/internal/repository"
	"collab_workspace/pkg/logger"
)

type Services struct {
	Room  RoomService
	User  UserService
	Quota QuotaService
}

func NewServices(repos *repository.Repositories, log logger.Logger) *Services {
	return &Services{
		Room:  NewRoomService(repos.Room, log),
		User:  NewUserService(repos.User, log),
		Quota: NewQuotaService(repos.Quota, log),
	}
}
