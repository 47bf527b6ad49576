package domain

import "github.com/google/uuid"

// Message - запись чата. Seq и Timestamp назначает сессия комнаты;
// клиентские значения для упорядочивания игнорируются.
type Message struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	MessageType string    `json:"message_type"`
	Timestamp   int64     `json:"timestamp"`
	Color       string    `json:"color"`
}

const (
	MessageTypeText         = "text"
	MessageTypeAnnouncement = "announcement"
	MessageTypeInfo         = "info"
	MessageTypeSuccess      = "success"
	MessageTypeError        = "error"
	MessageTypeSystem       = "system"
)

// ValidMessageType проверяет тип сообщения из клиентского фрейма.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeAnnouncement, MessageTypeInfo,
		MessageTypeSuccess, MessageTypeError, MessageTypeSystem:
		return true
	}
	return false
}

// ActivityEntry - запись ленты активности комнаты.
type ActivityEntry struct {
	ID          string     `json:"id"`
	Seq         int64      `json:"seq"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Details     string     `json:"details,omitempty"`
	Timestamp   int64      `json:"timestamp"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Username    *string    `json:"username,omitempty"`
}

const (
	ActivityTypeMessage = "message"
	ActivityTypeJoin    = "join"
	ActivityTypeLeave   = "leave"
	ActivityTypeTyping  = "typing"
	ActivityTypeDrawing = "drawing"
	ActivityTypeCode    = "code"
	ActivityTypeNotes   = "notes"
	ActivityTypeSystem  = "system"
)
