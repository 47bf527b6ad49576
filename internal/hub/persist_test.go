package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFlushAdvancesVersion(t *testing.T) {
	env := newTestEnv(t, 10)
	s := env.session
	go s.run()
	defer s.stop()

	c := newTestClient(env.cfg)
	require.NoError(t, s.Join(c, testUser("alice")))

	env.sched.FlushSync(s)

	assert.Equal(t, int64(2), env.roomRepo.storedVersion(env.room.ID))

	// Сессия узнала новую версию и следующая запись идёт поверх неё
	_, version, ok := s.SnapshotForSave()
	require.True(t, ok)
	assert.Equal(t, int64(2), version)
}

func TestSchedulerResolvesVersionConflict(t *testing.T) {
	env := newTestEnv(t, 10)
	s := env.session
	go s.run()
	defer s.stop()

	c := newTestClient(env.cfg)
	require.NoError(t, s.Join(c, testUser("alice")))

	// Первая запись натыкается на конфликт, повтор идёт с перечитанной
	// версией; состояние узла побеждает
	env.roomRepo.mu.Lock()
	env.roomRepo.conflictOnce = true
	env.roomRepo.mu.Unlock()

	env.sched.FlushSync(s)

	assert.Equal(t, 2, env.roomRepo.savedCalls())
	assert.Equal(t, int64(2), env.roomRepo.storedVersion(env.room.ID))
}

func TestSchedulerBacksOffOnFailure(t *testing.T) {
	env := newTestEnv(t, 10)
	s := env.session
	go s.run()
	defer s.stop()

	c := newTestClient(env.cfg)
	require.NoError(t, s.Join(c, testUser("alice")))

	env.roomRepo.mu.Lock()
	env.roomRepo.saveErr = errors.New("storage down")
	env.roomRepo.mu.Unlock()

	env.sched.MarkDirty(s)
	env.sched.flushDirty()
	require.Equal(t, 1, env.roomRepo.savedCalls())

	// Пока пауза не истекла, повторных попыток нет
	env.sched.flushDirty()
	env.sched.flushDirty()
	assert.Equal(t, 1, env.roomRepo.savedCalls())

	env.sched.mu.Lock()
	b, ok := env.sched.backoff[s.RoomID()]
	env.sched.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 1, b.attempts)
}

func TestSchedulerRecoversAfterFailure(t *testing.T) {
	env := newTestEnv(t, 10)
	s := env.session
	go s.run()
	defer s.stop()

	c := newTestClient(env.cfg)
	require.NoError(t, s.Join(c, testUser("alice")))

	env.roomRepo.mu.Lock()
	env.roomRepo.saveErr = errors.New("storage down")
	env.roomRepo.mu.Unlock()

	env.sched.MarkDirty(s)
	env.sched.flushDirty()

	env.roomRepo.mu.Lock()
	env.roomRepo.saveErr = nil
	env.roomRepo.mu.Unlock()

	// Пауза истекает и очередная попытка проходит
	env.sched.mu.Lock()
	env.sched.backoff[s.RoomID()].nextAttempt = time.Now().Add(-time.Millisecond)
	env.sched.mu.Unlock()

	env.sched.flushDirty()
	assert.Equal(t, int64(2), env.roomRepo.storedVersion(env.room.ID))

	// Успешная запись снимает пометки
	env.sched.mu.Lock()
	_, dirty := env.sched.dirty[s.RoomID()]
	_, backedOff := env.sched.backoff[s.RoomID()]
	env.sched.mu.Unlock()
	assert.False(t, dirty)
	assert.False(t, backedOff)
}

func TestSchedulerSkipsClosedSession(t *testing.T) {
	env := newTestEnv(t, 10)
	s := env.session
	go s.run()

	env.sched.MarkDirty(s)
	s.stop()

	env.sched.flushDirty()
	assert.Equal(t, 0, env.roomRepo.savedCalls())

	env.sched.mu.Lock()
	_, dirty := env.sched.dirty[s.RoomID()]
	env.sched.mu.Unlock()
	assert.False(t, dirty)
}
