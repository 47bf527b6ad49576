package domain

import (
	"time"

	"github.com/google/uuid"
)

// User - долговременная запись пользователя. SessionID - непрозрачный
// идентификатор клиента; по нему дедуплицируются повторные входы.
type User struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	SessionID   string         `json:"session_id"`
	Preferences map[string]any `json:"preferences,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	LastSeen    time.Time      `json:"last_seen"`
}
