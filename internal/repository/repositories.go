package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"collab_workspace/pkg/logger"
)

type Repositories struct {
	Room  RoomRepository
	User  UserRepository
	Chat  ChatRepository
	Quota QuotaRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		Room:  NewRoomRepository(db, log),
		User:  NewUserRepository(db, log),
		Chat:  NewChatRepository(rdb, log),
		Quota: NewQuotaRepository(rdb, log),
	}
}
