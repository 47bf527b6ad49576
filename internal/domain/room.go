package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room - долговременная запись комнаты. Поле Version используется для
// оптимистичной блокировки: Save с устаревшей версией завершается конфликтом.
type Room struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description,omitempty"`
	CreatedBy        string          `json:"created_by"`
	MaxParticipants  int             `json:"max_participants"`
	Settings         RoomSettings    `json:"settings"`
	Code             CodeState       `json:"code"`
	Notes            string          `json:"notes"`
	Canvas           []byte          `json:"canvas,omitempty"`
	Chat             []Message       `json:"chat,omitempty"`
	Activities       []ActivityEntry `json:"activities,omitempty"`
	ParticipantsEver []string        `json:"participants_ever,omitempty"`
	Active           bool            `json:"active"`
	Version          int64           `json:"version"`
	LastActivityAt   time.Time       `json:"last_activity_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RoomSettings - переключатели функций комнаты.
type RoomSettings struct {
	CodeEnabled   bool `json:"code_enabled"`
	NotesEnabled  bool `json:"notes_enabled"`
	CanvasEnabled bool `json:"canvas_enabled"`
	ChatEnabled   bool `json:"chat_enabled"`
	Anonymous     bool `json:"anonymous"`
	Public        bool `json:"public"`
}

// DefaultRoomSettings возвращает настройки с включёнными всеми поверхностями.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		CodeEnabled:   true,
		NotesEnabled:  true,
		CanvasEnabled: true,
		ChatEnabled:   true,
		Anonymous:     true,
		Public:        true,
	}
}

// CodeState - совместно редактируемый исходный код.
type CodeState struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

const (
	MinRoomParticipants = 2
	MaxRoomParticipants = 100
)
