package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collab_workspace/internal/domain"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Room, error)
	// Save записывает изменяемые поля комнаты при условии совпадения версии.
	// Возвращает новую версию либо ErrVersionConflict.
	Save(ctx context.Context, room *domain.Room, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AppendChat(ctx context.Context, roomID uuid.UUID, msg *domain.Message) error
	AppendActivity(ctx context.Context, roomID uuid.UUID, entry *domain.ActivityEntry) error
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (id, name, description, created_by, max_participants, settings,
		                   code_text, code_language, notes, canvas, participants_ever,
		                   active, version, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`

	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return err
	}
	ever, err := json.Marshal(room.ParticipantsEver)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, query,
		room.ID, room.Name, room.Description, room.CreatedBy, room.MaxParticipants, settings,
		room.Code.Text, room.Code.Language, room.Notes, room.Canvas, ever,
		room.Active, room.Version, room.LastActivityAt, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to create room", "error", err)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT id, name, description, created_by, max_participants, settings,
		       code_text, code_language, notes, canvas, participants_ever,
		       active, version, last_activity_at, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	var settings, ever []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.Description, &room.CreatedBy, &room.MaxParticipants, &settings,
		&room.Code.Text, &room.Code.Language, &room.Notes, &room.Canvas, &ever,
		&room.Active, &room.Version, &room.LastActivityAt, &room.CreatedAt, &room.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room by ID", "error", err)
		return nil, err
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &room.Settings); err != nil {
			r.log.Warn("Failed to unmarshal room settings", "error", err, "room_id", id)
		}
	}
	if len(ever) > 0 {
		if err := json.Unmarshal(ever, &room.ParticipantsEver); err != nil {
			r.log.Warn("Failed to unmarshal participants_ever", "error", err, "room_id", id)
		}
	}

	chat, err := r.loadChatTail(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Chat = chat

	activities, err := r.loadActivityTail(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Activities = activities

	return room, nil
}

func (r *roomRepository) loadChatTail(ctx context.Context, roomID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, seq, user_id, username, text, message_type, ts, color
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT 1000
	`

	rows, err := r.db.Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to load chat tail", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Seq, &m.UserID, &m.Username, &m.Text, &m.MessageType, &m.Timestamp, &m.Color); err != nil {
			r.log.Error("Failed to scan chat message", "error", err)
			return nil, err
		}
		messages = append(messages, m)
	}

	// Хвост выбирается по убыванию seq, разворачиваем в хронологический порядок
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *roomRepository) loadActivityTail(ctx context.Context, roomID uuid.UUID) ([]domain.ActivityEntry, error) {
	query := `
		SELECT id, seq, type, description, details, ts, user_id, username
		FROM room_activities
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT 500
	`

	rows, err := r.db.Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to load activity tail", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.Type, &e.Description, &e.Details, &e.Timestamp, &e.UserID, &e.Username); err != nil {
			r.log.Error("Failed to scan activity entry", "error", err)
			return nil, err
		}
		entries = append(entries, e)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func (r *roomRepository) List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Room, error) {
	query := `
		SELECT id, name, description, created_by, max_participants, settings,
		       active, version, last_activity_at, created_at, updated_at
		FROM rooms
		WHERE ($1 = false OR active = true)
		ORDER BY last_activity_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, onlyActive, limit, offset)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err)
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room := &domain.Room{}
		var settings []byte
		err := rows.Scan(
			&room.ID, &room.Name, &room.Description, &room.CreatedBy, &room.MaxParticipants, &settings,
			&room.Active, &room.Version, &room.LastActivityAt, &room.CreatedAt, &room.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &room.Settings); err != nil {
				r.log.Warn("Failed to unmarshal room settings", "error", err, "room_id", room.ID)
			}
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *roomRepository) Save(ctx context.Context, room *domain.Room, expectedVersion int64) (int64, error) {
	query := `
		UPDATE rooms
		SET code_text = $3, code_language = $4, notes = $5, canvas = $6,
		    participants_ever = $7, active = $8, last_activity_at = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	ever, err := json.Marshal(room.ParticipantsEver)
	if err != nil {
		return 0, err
	}

	var newVersion int64
	err = r.db.QueryRow(ctx, query,
		room.ID, expectedVersion,
		room.Code.Text, room.Code.Language, room.Notes, room.Canvas,
		ever, room.Active, room.LastActivityAt, time.Now(),
	).Scan(&newVersion)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Строка либо отсутствует, либо версия устарела
			var exists bool
			if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, room.ID).Scan(&exists); checkErr == nil && !exists {
				return 0, apperrors.ErrRoomNotFound
			}
			return 0, apperrors.ErrVersionConflict
		}
		r.log.Error("Failed to save room", "error", err, "room_id", room.ID)
		return 0, err
	}

	return newVersion, nil
}

func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete room", "error", err)
		return err
	}
	return nil
}

func (r *roomRepository) AppendChat(ctx context.Context, roomID uuid.UUID, msg *domain.Message) error {
	// Идемпотентность по id: повторная доставка того же сообщения - no-op
	query := `
		INSERT INTO chat_messages (id, room_id, seq, user_id, username, text, message_type, ts, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		msg.ID, roomID, msg.Seq, msg.UserID, msg.Username, msg.Text, msg.MessageType, msg.Timestamp, msg.Color,
	)
	if err != nil {
		r.log.Error("Failed to append chat message", "error", err, "room_id", roomID)
		return err
	}
	return nil
}

func (r *roomRepository) AppendActivity(ctx context.Context, roomID uuid.UUID, entry *domain.ActivityEntry) error {
	query := `
		INSERT INTO room_activities (id, room_id, seq, type, description, details, ts, user_id, username)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID, roomID, entry.Seq, entry.Type, entry.Description, entry.Details, entry.Timestamp, entry.UserID, entry.Username,
	)
	if err != nil {
		r.log.Error("Failed to append activity entry", "error", err, "room_id", roomID)
		return err
	}
	return nil
}
