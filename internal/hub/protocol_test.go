package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab_workspace/internal/domain"
	apperrors "collab_workspace/pkg/errors"
)

func requireHubError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var hubErr *apperrors.HubError
	require.ErrorAs(t, err, &hubErr)
	assert.Equal(t, code, hubErr.Code)
}

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"event":"chat-message","data":{"message":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventChatMessage, frame.Event)

	_, err = ParseFrame([]byte(`not json`))
	requireHubError(t, err, apperrors.CodeProtocolError)

	_, err = ParseFrame([]byte(`{"data":{}}`))
	requireHubError(t, err, apperrors.CodeProtocolError)

	_, err = ParseFrame([]byte(`{"event":"no-such-event","data":{}}`))
	requireHubError(t, err, apperrors.CodeProtocolError)
}

func TestValidateJoinRoom(t *testing.T) {
	cfg := testHubConfig()

	frame, err := ParseFrame([]byte(`{"event":"joinRoom","data":{"roomId":"r1","username":"alice"}}`))
	require.NoError(t, err)
	payload, err := ValidateFrame(frame, cfg)
	require.NoError(t, err)
	join := payload.(*JoinRoomData)
	assert.Equal(t, "r1", join.RoomID)
	assert.Equal(t, "alice", join.Username)

	frame, _ = ParseFrame([]byte(`{"event":"joinRoom","data":{"username":"alice"}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodeProtocolError)

	frame, _ = ParseFrame([]byte(`{"event":"joinRoom","data":{"roomId":"r1"}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodeProtocolError)
}

func TestValidateSizeCaps(t *testing.T) {
	cfg := testHubConfig()

	big := strings.Repeat("x", cfg.MaxCodeBytes+1)
	frame, _ := ParseFrame([]byte(`{"event":"code-change","data":{"content":"` + big + `","language":"go"}}`))
	_, err := ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodePayloadTooLarge)

	big = strings.Repeat("y", cfg.MaxNotesBytes+1)
	frame, _ = ParseFrame([]byte(`{"event":"note-change","data":{"content":"` + big + `"}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodePayloadTooLarge)

	big = strings.Repeat("z", cfg.MaxMessageBytes+1)
	frame, _ = ParseFrame([]byte(`{"event":"chat-message","data":{"message":"` + big + `"}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodePayloadTooLarge)
}

func TestValidateChatMessage(t *testing.T) {
	cfg := testHubConfig()

	frame, _ := ParseFrame([]byte(`{"event":"chat-message","data":{"message":"hi"}}`))
	payload, err := ValidateFrame(frame, cfg)
	require.NoError(t, err)
	msg := payload.(*ChatMessageData)
	assert.Equal(t, domain.MessageTypeText, msg.MessageType)

	frame, _ = ParseFrame([]byte(`{"event":"chat-message","data":{"message":""}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodeProtocolError)

	frame, _ = ParseFrame([]byte(`{"event":"chat-message","data":{"message":"hi","messageType":"carrier-pigeon"}}`))
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodeProtocolError)
}

func TestValidatePayloadlessEvents(t *testing.T) {
	cfg := testHubConfig()
	for _, event := range []string{EventLeaveRoom, EventTypingStart, EventTypingStop, EventPing} {
		frame, err := ParseFrame([]byte(`{"event":"` + event + `"}`))
		require.NoError(t, err, event)
		payload, err := ValidateFrame(frame, cfg)
		require.NoError(t, err, event)
		assert.Nil(t, payload, event)
	}
}

func TestValidateMissingData(t *testing.T) {
	cfg := testHubConfig()
	frame, err := ParseFrame([]byte(`{"event":"code-change"}`))
	require.NoError(t, err)
	_, err = ValidateFrame(frame, cfg)
	requireHubError(t, err, apperrors.CodeProtocolError)
}
