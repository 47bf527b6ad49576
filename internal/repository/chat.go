package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab_workspace/internal/domain"
	"collab_workspace/pkg/logger"
)

const (
	// TTL горячей истории чата в Redis
	chatTTL = 6 * time.Hour

	chatMessagesKeyPrefix = "chat:room:%s:messages"
)

// ChatRepository - горячая история чата в Redis: sorted set со score по
// времени, обрезаемый до ёмкости кольца. Долговременная история живёт в
// Postgres (RoomRepository.AppendChat); Redis переживает рестарт узла.
type ChatRepository interface {
	Push(ctx context.Context, roomID uuid.UUID, msg *domain.Message, ringCap int) error
	Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error)
	Drop(ctx context.Context, roomID uuid.UUID) error
}

type chatRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewChatRepository(rdb *redis.Client, log logger.Logger) ChatRepository {
	return &chatRepository{rdb: rdb, log: log}
}

func (r *chatRepository) key(roomID uuid.UUID) string {
	return fmt.Sprintf(chatMessagesKeyPrefix, roomID.String())
}

func (r *chatRepository) Push(ctx context.Context, roomID uuid.UUID, msg *domain.Message, ringCap int) error {
	key := r.key(roomID)

	messageJSON, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("Failed to marshal message", "error", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// seq как score даёт строгий порядок даже при равных метках времени
	err = r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Seq),
		Member: messageJSON,
	}).Err()
	if err != nil {
		r.log.Error("Failed to push message to Redis", "error", err, "room_id", roomID)
		return fmt.Errorf("failed to push message: %w", err)
	}

	// Обрезаем до ёмкости кольца: оставляем ringCap последних
	if err := r.rdb.ZRemRangeByRank(ctx, key, 0, int64(-ringCap-1)).Err(); err != nil {
		r.log.Warn("Failed to trim chat ring", "error", err, "room_id", roomID)
	}

	if err := r.rdb.Expire(ctx, key, chatTTL).Err(); err != nil {
		r.log.Warn("Failed to set TTL on chat key", "error", err)
		// Не критичная ошибка, продолжаем
	}

	return nil
}

func (r *chatRepository) Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error) {
	key := r.key(roomID)

	messagesJSON, err := r.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return []*domain.Message{}, nil
		}
		r.log.Error("Failed to get messages from Redis", "error", err, "room_id", roomID)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]*domain.Message, 0, len(messagesJSON))
	for _, msgJSON := range messagesJSON {
		var message domain.Message
		if err := json.Unmarshal([]byte(msgJSON), &message); err != nil {
			r.log.Warn("Failed to unmarshal message", "error", err)
			continue
		}
		messages = append(messages, &message)
	}

	// Разворачиваем в хронологический порядок
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) Drop(ctx context.Context, roomID uuid.UUID) error {
	return r.rdb.Del(ctx, r.key(roomID)).Err()
}
