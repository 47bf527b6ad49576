package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"collab_workspace/internal/config"
	"collab_workspace/internal/domain"
	"collab_workspace/internal/repository"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

const maxBackoff = 30 * time.Second

type backoffState struct {
	attempts    int
	nextAttempt time.Time
}

// Scheduler коалесцирует грязные сессии в пакетные записи: сброс по
// интервалу, по отправке сообщения чата (асинхронный append) и при
// вытеснении сессии. Конфликт версии разрешается в пользу узла.
type Scheduler struct {
	cfg   *config.HubConfig
	log   logger.Logger
	repos *repository.Repositories

	mu      sync.Mutex
	dirty   map[uuid.UUID]*Session
	backoff map[uuid.UUID]*backoffState

	stop     chan struct{}
	stopOnce sync.Once
}

func NewScheduler(cfg *config.HubConfig, repos *repository.Repositories, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		log:     log,
		repos:   repos,
		dirty:   make(map[uuid.UUID]*Session),
		backoff: make(map[uuid.UUID]*backoffState),
		stop:    make(chan struct{}),
	}
}

// Run - цикл периодического сброса. Запускается отдельной горутиной.
func (p *Scheduler) Run() {
	ticker := time.NewTicker(p.cfg.PersistenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flushDirty()
		case <-p.stop:
			return
		}
	}
}

func (p *Scheduler) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// MarkDirty ставит сессию в очередь на следующий сброс.
func (p *Scheduler) MarkDirty(s *Session) {
	p.mu.Lock()
	p.dirty[s.RoomID()] = s
	p.mu.Unlock()
}

func (p *Scheduler) flushDirty() {
	now := time.Now()

	p.mu.Lock()
	batch := make([]*Session, 0, len(p.dirty))
	for roomID, s := range p.dirty {
		if b, ok := p.backoff[roomID]; ok && now.Before(b.nextAttempt) {
			continue
		}
		batch = append(batch, s)
	}
	p.mu.Unlock()

	for _, s := range batch {
		p.flushSession(s)
	}
}

// FlushSync - синхронный финальный сброс при вытеснении сессии.
func (p *Scheduler) FlushSync(s *Session) {
	p.flushSession(s)
}

func (p *Scheduler) flushSession(s *Session) {
	room, version, ok := s.SnapshotForSave()
	if !ok {
		p.forget(s.RoomID())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PersistenceWriteTimeout)
	defer cancel()

	newVersion, err := p.repos.Room.Save(ctx, room, version)
	if errors.Is(err, apperrors.ErrVersionConflict) {
		// Кто-то записал комнату мимо нас; перечитываем версию и
		// переигрываем запись - состояние в памяти узла авторитетно
		stored, loadErr := p.repos.Room.GetByID(ctx, room.ID)
		if loadErr != nil {
			p.noteFailure(s, loadErr)
			return
		}
		newVersion, err = p.repos.Room.Save(ctx, room, stored.Version)
	}
	if err != nil {
		p.noteFailure(s, err)
		return
	}

	s.Saved(newVersion)
	s.SetDegraded(false)
	p.forget(room.ID)
	p.log.Debug("Room flushed", "room_id", room.ID, "version", newVersion)
}

func (p *Scheduler) forget(roomID uuid.UUID) {
	p.mu.Lock()
	delete(p.dirty, roomID)
	delete(p.backoff, roomID)
	p.mu.Unlock()
}

// noteFailure - экспоненциальная пауза перед повтором, потолок 30 секунд.
// Сессия помечается деградировавшей, но раздачу событий не останавливает.
func (p *Scheduler) noteFailure(s *Session, err error) {
	roomID := s.RoomID()

	p.mu.Lock()
	b, ok := p.backoff[roomID]
	if !ok {
		b = &backoffState{}
		p.backoff[roomID] = b
	}
	b.attempts++
	delay := time.Second << uint(b.attempts-1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	b.nextAttempt = time.Now().Add(delay)
	attempts := b.attempts
	p.mu.Unlock()

	s.SetDegraded(true)
	p.log.Error("Failed to persist room", "error", err, "room_id", roomID, "attempts", attempts, "retry_in", delay)
}

// AppendChat - асинхронная дозапись сообщения: журнал в Postgres и горячее
// кольцо в Redis. Кольцо в памяти сессии авторитетно в любом случае.
func (p *Scheduler) AppendChat(roomID uuid.UUID, msg domain.Message, ringCap int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PersistenceWriteTimeout)
		defer cancel()

		if err := p.repos.Room.AppendChat(ctx, roomID, &msg); err != nil {
			p.log.Warn("Chat append failed", "error", err, "room_id", roomID, "message_id", msg.ID)
		}
		if err := p.repos.Chat.Push(ctx, roomID, &msg, ringCap); err != nil {
			p.log.Warn("Chat ring push failed", "error", err, "room_id", roomID, "message_id", msg.ID)
		}
	}()
}

// AppendActivity - асинхронная дозапись записи ленты активности.
func (p *Scheduler) AppendActivity(roomID uuid.UUID, entry domain.ActivityEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PersistenceWriteTimeout)
		defer cancel()

		if err := p.repos.Room.AppendActivity(ctx, roomID, &entry); err != nil {
			p.log.Warn("Activity append failed", "error", err, "room_id", roomID, "entry_id", entry.ID)
		}
	}()
}
