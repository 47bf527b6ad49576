package service

import (
	"context"
	"time"

	"collab_workspace/internal/repository"
	"collab_workspace/pkg/logger"
)

type QuotaService interface {
	CheckLimit(ctx context.Context, key string, limit int, windowSeconds int) (bool, error)
	Increment(ctx context.Context, key string, windowSeconds int) (int64, error)
}

type quotaService struct {
	quotaRepo repository.QuotaRepository
	log       logger.Logger
}

func NewQuotaService(quotaRepo repository.QuotaRepository, log logger.Logger) QuotaService {
	return &quotaService{quotaRepo: quotaRepo, log: log}
}

func (s *quotaService) CheckLimit(ctx context.Context, key string, limit int, windowSeconds int) (bool, error) {
	return s.quotaRepo.CheckLimit(ctx, key, limit, time.Duration(windowSeconds)*time.Second)
}

func (s *quotaService) Increment(ctx context.Context, key string, windowSeconds int) (int64, error) {
	return s.quotaRepo.Increment(ctx, key, time.Duration(windowSeconds)*time.Second)
}
