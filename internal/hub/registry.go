package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"collab_workspace/internal/config"
	"collab_workspace/internal/repository"
	"collab_workspace/pkg/logger"
)

type registryEntry struct {
	session    *Session
	refs       int
	evictTimer *time.Timer
}

// Registry - карта активных сессий комнат со счётчиком живых соединений.
// Сессия создаётся при первом входе и вытесняется после паузы без участников;
// вход в период паузы воскрешает её.
type Registry struct {
	cfg   *config.HubConfig
	log   logger.Logger
	repos *repository.Repositories
	sched *Scheduler

	mu      sync.Mutex
	entries map[uuid.UUID]*registryEntry
}

func NewRegistry(cfg *config.HubConfig, repos *repository.Repositories, sched *Scheduler, log logger.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		log:     log,
		repos:   repos,
		sched:   sched,
		entries: make(map[uuid.UUID]*registryEntry),
	}
}

// Acquire возвращает сессию комнаты, лениво загружая запись из хранилища.
// Счётчик ссылок увеличивается на единицу.
func (r *Registry) Acquire(ctx context.Context, roomID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[roomID]; ok && !entry.session.isClosed() {
		entry.refs++
		if entry.evictTimer != nil {
			entry.evictTimer.Stop()
			entry.evictTimer = nil
		}
		return entry.session, nil
	}

	room, err := r.repos.Room.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// Горячая история из Redis свежее постгресового хвоста после рестарта
	if recent, err := r.repos.Chat.Recent(ctx, roomID, r.cfg.ChatRingCap); err == nil && len(recent) > 0 {
		room.Chat = room.Chat[:0]
		for _, m := range recent {
			room.Chat = append(room.Chat, *m)
		}
	}

	session := newSession(room, r.cfg, r.sched, r.log)
	go session.run()

	r.entries[roomID] = &registryEntry{session: session, refs: 1}
	r.log.Info("Room session created", "room_id", roomID)
	return session, nil
}

// Release уменьшает счётчик; при нуле сессия помечается на вытеснение
// после паузы, в течение которой новый вход может её воскресить.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[s.RoomID()]
	if !ok || entry.session != s {
		return
	}

	entry.refs--
	if entry.refs > 0 {
		return
	}

	roomID := s.RoomID()
	entry.evictTimer = time.AfterFunc(r.cfg.IdleRoomEviction, func() {
		r.evict(roomID, s)
	})
}

func (r *Registry) evict(roomID uuid.UUID, s *Session) {
	r.mu.Lock()
	entry, ok := r.entries[roomID]
	if !ok || entry.session != s || entry.refs > 0 {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	// Финальный сброс при ещё видимой записи: параллельный Acquire в этот
	// момент переиспользует живую сессию вместо перечитывания из хранилища
	// комнаты, которая ещё не записана
	r.sched.FlushSync(s)

	r.mu.Lock()
	entry, ok = r.entries[roomID]
	if !ok || entry.session != s {
		r.mu.Unlock()
		return
	}
	if entry.refs > 0 {
		// Сессию воскресили во время сброса; запись лишней не была
		r.mu.Unlock()
		return
	}
	delete(r.entries, roomID)
	r.mu.Unlock()

	s.stop()
	r.log.Info("Room session evicted", "room_id", roomID)
}

// Count - число активных сессий.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown вытесняет все сессии немедленно; вызывается при остановке узла.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.evictTimer != nil {
			entry.evictTimer.Stop()
		}
		all = append(all, entry)
	}
	r.entries = make(map[uuid.UUID]*registryEntry)
	r.mu.Unlock()

	for _, entry := range all {
		r.sched.FlushSync(entry.session)
		entry.session.stop()
	}
}
