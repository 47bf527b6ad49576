package hub

import (
	"encoding/json"
	"fmt"

	apperrors "collab_workspace/pkg/errors"

	"collab_workspace/internal/config"
	"collab_workspace/internal/domain"
)

// События клиент → сервер.
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventCodeChange     = "code-change"
	EventNoteChange     = "note-change"
	EventDrawEvent      = "draw-event"
	EventChatMessage    = "chat-message"
	EventPresenceUpdate = "presence-update"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventPing           = "ping"
)

// События сервер → клиент.
const (
	EventRoomJoined       = "roomJoined"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventUserDisconnected = "userDisconnected"
	EventCodeChanged      = "code-changed"
	EventNoteChanged      = "note-changed"
	EventDrawingUpdated   = "drawing-updated"
	EventChatHistory      = "chatHistory"
	EventPresenceUpdated  = "presence-updated"
	EventPong             = "pong"
	EventError            = "error"
)

// Frame - кадр протокола: {"event": string, "data": object}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CursorPosition - позиция курсора участника на любой из поверхностей.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type JoinRoomData struct {
	RoomID      string         `json:"roomId"`
	Username    string         `json:"username"`
	SessionID   string         `json:"sessionId,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

type CodeChangeData struct {
	Content        string          `json:"content"`
	Language       string          `json:"language"`
	CursorPosition *CursorPosition `json:"cursorPosition,omitempty"`
}

type NoteChangeData struct {
	Content string `json:"content"`
}

type DrawEventData struct {
	DrawingData json.RawMessage `json:"drawingData"`
	Action      string          `json:"action"`
}

type ChatMessageData struct {
	ID          string `json:"id,omitempty"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

type PresenceUpdateData struct {
	CursorPosition *CursorPosition `json:"cursorPosition,omitempty"`
	IsActive       bool            `json:"isActive"`
}

// ParseFrame разбирает входящий кадр. Неизвестный вид события - ProtocolError.
func ParseFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, apperrors.NewHubError(apperrors.CodeProtocolError, "malformed frame")
	}
	if frame.Event == "" {
		return nil, apperrors.NewHubError(apperrors.CodeProtocolError, "missing event field")
	}
	switch frame.Event {
	case EventJoinRoom, EventLeaveRoom, EventCodeChange, EventNoteChange,
		EventDrawEvent, EventChatMessage, EventPresenceUpdate,
		EventTypingStart, EventTypingStop, EventPing:
		return &frame, nil
	}
	return nil, apperrors.NewHubError(apperrors.CodeProtocolError, fmt.Sprintf("unknown event %q", frame.Event))
}

// decodeData разбирает полезную нагрузку события в типизированную структуру.
func decodeData(frame *Frame, dst any) error {
	if len(frame.Data) == 0 {
		return apperrors.NewHubError(apperrors.CodeProtocolError, "missing data field")
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		return apperrors.NewHubError(apperrors.CodeProtocolError, "malformed data payload")
	}
	return nil
}

// ValidateFrame проверяет нагрузку события против лимитов конфигурации и
// возвращает типизированную нагрузку. Невалидный ввод не доходит до сессии.
func ValidateFrame(frame *Frame, cfg *config.HubConfig) (any, error) {
	switch frame.Event {
	case EventJoinRoom:
		var d JoinRoomData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		if d.RoomID == "" {
			return nil, apperrors.NewHubError(apperrors.CodeProtocolError, "joinRoom requires roomId")
		}
		if d.Username == "" {
			return nil, apperrors.NewHubError(apperrors.CodeProtocolError, "joinRoom requires username")
		}
		return &d, nil

	case EventCodeChange:
		var d CodeChangeData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		if len(d.Content) > cfg.MaxCodeBytes {
			return nil, apperrors.NewHubError(apperrors.CodePayloadTooLarge, "code content exceeds limit")
		}
		return &d, nil

	case EventNoteChange:
		var d NoteChangeData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		if len(d.Content) > cfg.MaxNotesBytes {
			return nil, apperrors.NewHubError(apperrors.CodePayloadTooLarge, "notes content exceeds limit")
		}
		return &d, nil

	case EventDrawEvent:
		var d DrawEventData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		if len(d.DrawingData) > cfg.MaxCanvasBytes {
			return nil, apperrors.NewHubError(apperrors.CodePayloadTooLarge, "canvas scene exceeds limit")
		}
		return &d, nil

	case EventChatMessage:
		var d ChatMessageData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		if d.Message == "" {
			return nil, apperrors.NewHubError(apperrors.CodeProtocolError, "empty chat message")
		}
		if len(d.Message) > cfg.MaxMessageBytes {
			return nil, apperrors.NewHubError(apperrors.CodePayloadTooLarge, "chat message exceeds limit")
		}
		if d.MessageType == "" {
			d.MessageType = domain.MessageTypeText
		}
		if !domain.ValidMessageType(d.MessageType) {
			return nil, apperrors.NewHubError(apperrors.CodeProtocolError, fmt.Sprintf("unknown message type %q", d.MessageType))
		}
		return &d, nil

	case EventPresenceUpdate:
		var d PresenceUpdateData
		if err := decodeData(frame, &d); err != nil {
			return nil, err
		}
		return &d, nil

	case EventLeaveRoom, EventTypingStart, EventTypingStop, EventPing:
		// Нагрузка отсутствует либо игнорируется
		return nil, nil
	}

	return nil, apperrors.NewHubError(apperrors.CodeProtocolError, fmt.Sprintf("unknown event %q", frame.Event))
}

// marshalFrame собирает исходящий кадр. data уже сериализуемая структура.
func marshalFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}

// errorFrame собирает кадр "error" с кодом и сообщением.
func errorFrame(code, message string) []byte {
	raw, _ := marshalFrame(EventError, apperrors.HubError{Code: code, Message: message})
	return raw
}
