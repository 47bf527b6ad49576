package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrBadRequest          = errors.New("bad request")
	ErrInternalServer      = errors.New("internal server error")
	ErrRoomNotFound        = errors.New("room not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrVersionConflict     = errors.New("version conflict")
	ErrRoomInactive        = errors.New("room is not active")
)

// Коды ошибок, отправляемые клиенту в error-фрейме по WebSocket.
const (
	CodeProtocolError   = "ProtocolError"
	CodePayloadTooLarge = "PayloadTooLarge"
	CodeRoomFull        = "RoomFull"
	CodeNotJoined       = "NotJoined"
	CodeRateLimited     = "RateLimited"
	CodeInternalError   = "InternalError"
)

// HubError - ошибка уровня протокола реального времени.
// Code попадает в поле data.code фрейма "error".
type HubError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *HubError) Error() string {
	return e.Code + ": " + e.Message
}

func NewHubError(code, message string) *HubError {
	return &HubError{Code: code, Message: message}
}

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrUserNotFound), errors.Is(err, ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
