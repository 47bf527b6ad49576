package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"collab_workspace/internal/domain"
	"collab_workspace/internal/repository"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

type RoomService interface {
	Create(ctx context.Context, name string, description *string, createdBy string, maxParticipants int, settings *domain.RoomSettings) (*domain.Room, error)
	GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Room, error)
	Update(ctx context.Context, roomID uuid.UUID, name *string, description *string, maxParticipants *int) (*domain.Room, error)
	Delete(ctx context.Context, roomID uuid.UUID) error
}

type roomService struct {
	roomRepo repository.RoomRepository
	log      logger.Logger
}

func NewRoomService(roomRepo repository.RoomRepository, log logger.Logger) RoomService {
	return &roomService{roomRepo: roomRepo, log: log}
}

func (s *roomService) Create(ctx context.Context, name string, description *string, createdBy string, maxParticipants int, settings *domain.RoomSettings) (*domain.Room, error) {
	if name == "" {
		return nil, apperrors.ErrBadRequest
	}
	if maxParticipants < domain.MinRoomParticipants || maxParticipants > domain.MaxRoomParticipants {
		maxParticipants = 10
	}

	roomSettings := domain.DefaultRoomSettings()
	if settings != nil {
		roomSettings = *settings
	}

	now := time.Now()
	room := &domain.Room{
		ID:              uuid.New(),
		Name:            name,
		Description:     description,
		CreatedBy:       createdBy,
		MaxParticipants: maxParticipants,
		Settings:        roomSettings,
		Code:            domain.CodeState{Language: "javascript"},
		Active:          true,
		Version:         1,
		LastActivityAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		s.log.Error("Failed to create room", "error", err)
		return nil, err
	}

	s.log.Info("Room created", "room_id", room.ID, "name", name, "created_by", createdBy)
	return room, nil
}

func (s *roomService) GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, roomID)
}

func (s *roomService) List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.roomRepo.List(ctx, onlyActive, limit, offset)
}

func (s *roomService) Update(ctx context.Context, roomID uuid.UUID, name *string, description *string, maxParticipants *int) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if name != nil && *name != "" {
		room.Name = *name
	}
	if description != nil {
		room.Description = description
	}
	if maxParticipants != nil {
		if *maxParticipants >= domain.MinRoomParticipants && *maxParticipants <= domain.MaxRoomParticipants {
			room.MaxParticipants = *maxParticipants
		}
	}

	// HTTP-слой не трогает совместно редактируемые поверхности, но метаданные
	// пишутся через тот же оптимистичный Save; конфликт отдаётся клиенту
	if _, err := s.roomRepo.Save(ctx, room, room.Version); err != nil {
		return nil, err
	}

	return room, nil
}

func (s *roomService) Delete(ctx context.Context, roomID uuid.UUID) error {
	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		return err
	}
	s.log.Info("Room deleted", "room_id", roomID)
	return nil
}
