package hub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab_workspace/internal/domain"
	"collab_workspace/internal/repository"
	apperrors "collab_workspace/pkg/errors"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeRoomRepo, *fakeChatRepo) {
	t.Helper()
	cfg := testHubConfig()
	roomRepo := newFakeRoomRepo()
	chatRepo := &fakeChatRepo{}
	repos := &repository.Repositories{Room: roomRepo, Chat: chatRepo}
	sched := NewScheduler(cfg, repos, nopLogger{})
	return NewRegistry(cfg, repos, sched, nopLogger{}), roomRepo, chatRepo
}

func TestRegistryAcquireSharesSession(t *testing.T) {
	reg, roomRepo, _ := newTestRegistry(t)
	room := testRoom(10)
	require.NoError(t, roomRepo.Create(context.Background(), room))

	first, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	defer first.stop()

	second, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryAcquireUnknownRoom(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Acquire(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	assert.Equal(t, 0, reg.Count())
}

func TestRegistryEvictsIdleSession(t *testing.T) {
	reg, roomRepo, _ := newTestRegistry(t)
	room := testRoom(10)
	require.NoError(t, roomRepo.Create(context.Background(), room))

	s, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)

	reg.Release(s)

	require.Eventually(t, func() bool {
		return reg.Count() == 0 && s.isClosed()
	}, time.Second, 5*time.Millisecond)

	// Вытеснение сопровождается финальным сбросом
	assert.GreaterOrEqual(t, roomRepo.savedCalls(), 1)
}

func TestRegistryResurrectsWithinGrace(t *testing.T) {
	reg, roomRepo, _ := newTestRegistry(t)
	room := testRoom(10)
	require.NoError(t, roomRepo.Create(context.Background(), room))

	s, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	defer s.stop()

	reg.Release(s)

	// Вход в период паузы отменяет вытеснение
	again, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Same(t, s, again)

	time.Sleep(3 * reg.cfg.IdleRoomEviction)
	assert.Equal(t, 1, reg.Count())
	assert.False(t, s.isClosed())
}

func TestRegistryAcquireDuringFinalFlush(t *testing.T) {
	reg, roomRepo, _ := newTestRegistry(t)
	room := testRoom(10)
	require.NoError(t, roomRepo.Create(context.Background(), room))

	s, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	defer s.stop()

	gate := make(chan struct{})
	roomRepo.mu.Lock()
	roomRepo.saveGate = gate
	roomRepo.mu.Unlock()

	reg.Release(s)

	// Дожидаемся начала финального сброса
	require.Eventually(t, func() bool {
		return roomRepo.savedCalls() >= 1
	}, time.Second, time.Millisecond)

	// Пока сброс не завершён, запись реестра ещё на месте: вход получает
	// живую сессию, а не перечитанную из хранилища копию без этого сброса
	again, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Same(t, s, again)

	close(gate)

	time.Sleep(3 * reg.cfg.IdleRoomEviction)
	assert.False(t, s.isClosed())
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryPrefersHotChatHistory(t *testing.T) {
	reg, roomRepo, chatRepo := newTestRegistry(t)
	room := testRoom(10)
	room.Chat = []domain.Message{{ID: "msg_stale", Seq: 1, Text: "stale"}}
	require.NoError(t, roomRepo.Create(context.Background(), room))

	chatRepo.recent = []*domain.Message{
		{ID: "msg_hot1", Seq: 5, Text: "hot1"},
		{ID: "msg_hot2", Seq: 6, Text: "hot2"},
	}

	s, err := reg.Acquire(context.Background(), room.ID)
	require.NoError(t, err)
	defer s.stop()

	require.Len(t, s.room.Chat, 2)
	assert.Equal(t, "msg_hot1", s.room.Chat[0].ID)
	assert.Equal(t, int64(6), s.seq)
}

func TestRegistryShutdownFlushesAll(t *testing.T) {
	reg, roomRepo, _ := newTestRegistry(t)

	var sessions []*Session
	for i := 0; i < 3; i++ {
		room := testRoom(10)
		require.NoError(t, roomRepo.Create(context.Background(), room))
		s, err := reg.Acquire(context.Background(), room.ID)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	reg.Shutdown()

	assert.Equal(t, 0, reg.Count())
	for _, s := range sessions {
		assert.True(t, s.isClosed())
	}
	assert.GreaterOrEqual(t, roomRepo.savedCalls(), 3)
}
