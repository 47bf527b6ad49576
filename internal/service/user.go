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

type UserService interface {
	Create(ctx context.Context, username string, sessionID string, preferences map[string]any) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, id uuid.UUID, username *string, preferences map[string]any) (*domain.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{userRepo: userRepo, log: log}
}

func (s *userService) Create(ctx context.Context, username string, sessionID string, preferences map[string]any) (*domain.User, error) {
	if username == "" {
		return nil, apperrors.ErrBadRequest
	}
	if sessionID == "" {
		// Сервер выдаёт непрозрачный идентификатор, если клиент не принёс свой
		sessionID = "sess_" + uuid.New().String()
	}

	now := time.Now()
	user := &domain.User{
		ID:          uuid.New(),
		Username:    username,
		SessionID:   sessionID,
		Preferences: preferences,
		CreatedAt:   now,
		LastSeen:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) Update(ctx context.Context, id uuid.UUID, username *string, preferences map[string]any) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if username != nil && *username != "" {
		user.Username = *username
	}
	if preferences != nil {
		user.Preferences = preferences
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}
