package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"collab_workspace/internal/config"
	"collab_workspace/internal/domain"
	"collab_workspace/internal/repository"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

// Общие фейки и помощники для тестов пакета.

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)  {}
func (nopLogger) Info(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)   {}
func (nopLogger) Error(msg string, args ...any)  {}
func (nopLogger) Fatal(msg string, args ...any)  {}
func (nopLogger) With(args ...any) logger.Logger { return nopLogger{} }

type fakeRoomRepo struct {
	mu sync.Mutex

	rooms map[uuid.UUID]*domain.Room

	saveErr      error
	conflictOnce bool

	// Открытый канал задерживает Save до его закрытия
	saveGate chan struct{}

	saveCalls       int
	chatAppends     []domain.Message
	activityAppends []domain.ActivityEntry
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[uuid.UUID]*domain.Room)}
}

func (f *fakeRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *room
	f.rooms[room.ID] = &cp
	return nil
}

func (f *fakeRoomRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (f *fakeRoomRepo) List(ctx context.Context, onlyActive bool, limit, offset int) ([]*domain.Room, error) {
	return nil, nil
}

func (f *fakeRoomRepo) Save(ctx context.Context, room *domain.Room, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	f.saveCalls++
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	if f.conflictOnce {
		f.conflictOnce = false
		return 0, apperrors.ErrVersionConflict
	}
	stored, ok := f.rooms[room.ID]
	if !ok {
		return 0, apperrors.ErrRoomNotFound
	}
	if stored.Version != expectedVersion {
		return 0, apperrors.ErrVersionConflict
	}
	cp := *room
	cp.Version = expectedVersion + 1
	f.rooms[room.ID] = &cp
	return cp.Version, nil
}

func (f *fakeRoomRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	return nil
}

func (f *fakeRoomRepo) AppendChat(ctx context.Context, roomID uuid.UUID, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatAppends = append(f.chatAppends, *msg)
	return nil
}

func (f *fakeRoomRepo) AppendActivity(ctx context.Context, roomID uuid.UUID, entry *domain.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityAppends = append(f.activityAppends, *entry)
	return nil
}

func (f *fakeRoomRepo) storedVersion(id uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[id]; ok {
		return room.Version
	}
	return 0
}

func (f *fakeRoomRepo) savedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

type fakeChatRepo struct {
	mu     sync.Mutex
	recent []*domain.Message
	pushes []domain.Message
}

func (f *fakeChatRepo) Push(ctx context.Context, roomID uuid.UUID, msg *domain.Message, ringCap int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, *msg)
	return nil
}

func (f *fakeChatRepo) Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent, nil
}

func (f *fakeChatRepo) Drop(ctx context.Context, roomID uuid.UUID) error { return nil }

func testHubConfig() *config.HubConfig {
	return &config.HubConfig{
		MaxConnectionsPerAddress: 20,
		EventRateBurst:           100,
		EventRateSustain:         50,
		OutboundQueueDepth:       64,
		HandshakeTimeout:         time.Second,
		IdleRoomEviction:         20 * time.Millisecond,
		PersistenceInterval:      10 * time.Millisecond,
		PersistenceWriteTimeout:  time.Second,
		ChatRingCap:              5,
		ActivityRingCap:          10,
		MaxNotesBytes:            1 << 12,
		MaxCanvasBytes:           1 << 12,
		MaxCodeBytes:             1 << 12,
		MaxMessageBytes:          256,
		CursorTTL:                time.Second,
		TypingDeadline:           50 * time.Millisecond,
		PresenceCoalesce:         10 * time.Millisecond,
	}
}

func testRoom(maxParticipants int) *domain.Room {
	now := time.Now()
	return &domain.Room{
		ID:              uuid.New(),
		Name:            "test room",
		CreatedBy:       "tester",
		MaxParticipants: maxParticipants,
		Settings:        domain.DefaultRoomSettings(),
		Code:            domain.CodeState{Language: "javascript"},
		Active:          true,
		Version:         1,
		LastActivityAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testUser(name string) *domain.User {
	return &domain.User{
		ID:        uuid.New(),
		Username:  name,
		SessionID: "sess_" + name,
	}
}

// testEnv собирает сессию с фейковыми репозиториями. Горутина актора не
// запускается: тесты зовут handleJoin/handleFrame/tick напрямую, чтобы
// проверки были детерминированными.
type testEnv struct {
	cfg      *config.HubConfig
	roomRepo *fakeRoomRepo
	chatRepo *fakeChatRepo
	sched    *Scheduler
	session  *Session
	room     *domain.Room
}

func newTestEnv(t *testing.T, maxParticipants int) *testEnv {
	t.Helper()

	cfg := testHubConfig()
	roomRepo := newFakeRoomRepo()
	chatRepo := &fakeChatRepo{}
	repos := &repository.Repositories{Room: roomRepo, Chat: chatRepo}
	sched := NewScheduler(cfg, repos, nopLogger{})

	room := testRoom(maxParticipants)
	if err := roomRepo.Create(context.Background(), room); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	session := newSession(room, cfg, sched, nopLogger{})
	return &testEnv{
		cfg:      cfg,
		roomRepo: roomRepo,
		chatRepo: chatRepo,
		sched:    sched,
		session:  session,
		room:     room,
	}
}

func newTestClient(cfg *config.HubConfig) *Client {
	return &Client{
		log:    nopLogger{},
		send:   make(chan []byte, cfg.OutboundQueueDepth),
		bucket: newTokenBucket(float64(cfg.EventRateSustain), cfg.EventRateBurst),
		state:  clientFresh,
	}
}

// drainFrames вычитывает все накопленные кадры клиента без блокировки.
func drainFrames(t *testing.T, c *Client) []Frame {
	t.Helper()
	var frames []Frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var f Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func framesByEvent(frames []Frame, event string) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}
