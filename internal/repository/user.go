package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"collab_workspace/internal/domain"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

// В БД username VARCHAR(50); лимит считается в символах
const maxUsernameLen = 50

// truncateUsername обрезает имя по рунам, не разрывая многобайтовые символы.
func truncateUsername(name string) string {
	runes := []rune(name)
	if len(runes) <= maxUsernameLen {
		return name
	}
	return string(runes[:maxUsernameLen])
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	username := truncateUsername(user.Username)
	user.Username = username

	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, username, session_id, preferences, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, last_seen
	`

	err = r.db.QueryRow(ctx, query,
		user.ID, username, user.SessionID, prefs, user.CreatedAt, user.LastSeen,
	).Scan(&user.CreatedAt, &user.LastSeen)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// 23505 = unique_violation: такой session_id уже зарегистрирован
			r.log.Warn("User already exists (unique violation)", "session_id", user.SessionID, "constraint", pgErr.ConstraintName)
			return apperrors.ErrBadRequest
		}
		r.log.Error("Failed to create user", "error", err)
		return err
	}

	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, username, session_id, preferences, created_at, last_seen
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *userRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.User, error) {
	query := `
		SELECT id, username, session_id, preferences, created_at, last_seen
		FROM users
		WHERE session_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, sessionID))
}

func (r *userRepository) scanOne(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	var prefs []byte
	err := row.Scan(&user.ID, &user.Username, &user.SessionID, &prefs, &user.CreatedAt, &user.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user", "error", err)
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			r.log.Warn("Failed to unmarshal user preferences", "error", err, "user_id", user.ID)
		}
	}
	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return err
	}

	query := `
		UPDATE users
		SET username = $2, preferences = $3, last_seen = $4
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, user.ID, truncateUsername(user.Username), prefs, time.Now())
	if err != nil {
		r.log.Error("Failed to update user", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_seen = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		r.log.Error("Failed to touch last_seen", "error", err, "user_id", id)
	}
	return err
}
