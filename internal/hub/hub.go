package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collab_workspace/internal/config"
	"collab_workspace/internal/domain"
	"collab_workspace/internal/repository"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

// Hub принимает сокеты, проводит рукопожатие joinRoom и маршрутизирует
// события соединений в сессии комнат.
type Hub struct {
	cfg      *config.Config
	log      logger.Logger
	repos    *repository.Repositories
	sched    *Scheduler
	registry *Registry
}

func NewHub(cfg *config.Config, repos *repository.Repositories, log logger.Logger) *Hub {
	sched := NewScheduler(&cfg.Hub, repos, log)
	registry := NewRegistry(&cfg.Hub, repos, sched, log)
	return &Hub{
		cfg:      cfg,
		log:      log,
		repos:    repos,
		sched:    sched,
		registry: registry,
	}
}

// Start запускает фоновый цикл персистентности.
func (h *Hub) Start() {
	go h.sched.Run()
}

// Shutdown сбрасывает и останавливает все сессии. Вызывается при
// остановке процесса, после прекращения приёма новых соединений.
func (h *Hub) Shutdown() {
	h.registry.Shutdown()
	h.sched.Stop()
}

// ActiveRooms - число живых сессий, для health-эндпоинта.
func (h *Hub) ActiveRooms() int {
	return h.registry.Count()
}

// ServeWS - gin-обработчик эндпоинта /ws: допуск по адресу, апгрейд и
// запуск насосов соединения.
func (h *Hub) ServeWS(c *gin.Context) {
	addr := c.ClientIP()

	allowed, err := h.repos.Quota.AcquireConn(c.Request.Context(), addr, h.cfg.Hub.MaxConnectionsPerAddress)
	if err != nil {
		h.log.Error("Connection quota check failed", "error", err, "addr", addr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this address"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err, "addr", addr)
		h.releaseAddr(addr)
		return
	}

	client := newClient(h, conn, addr, h.log)
	h.log.Debug("Connection accepted", "addr", addr)

	go client.writePump()
	go client.readPump()
}

// join выполняет рукопожатие joinRoom: разрешение личности, получение
// сессии из реестра и вход с проверкой допуска комнаты.
func (h *Hub) join(c *Client, d *JoinRoomData) error {
	roomID, err := uuid.Parse(d.RoomID)
	if err != nil {
		return apperrors.NewHubError(apperrors.CodeProtocolError, "invalid roomId")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user := h.resolveUser(ctx, d)

	session, err := h.registry.Acquire(ctx, roomID)
	if err != nil {
		if errors.Is(err, apperrors.ErrRoomNotFound) {
			return apperrors.NewHubError(apperrors.CodeProtocolError, "room does not exist")
		}
		h.log.Error("Failed to acquire room session", "error", err, "room_id", roomID)
		return apperrors.NewHubError(apperrors.CodeInternalError, "failed to load room")
	}

	if err := session.Join(c, user); err != nil {
		h.registry.Release(session)
		return err
	}

	c.bind(session)
	return nil
}

// resolveUser находит или создаёт запись пользователя по sessionId.
// Отказ хранилища не блокирует вход: личность становится эфемерной.
func (h *Hub) resolveUser(ctx context.Context, d *JoinRoomData) *domain.User {
	sessionID := d.SessionID
	if sessionID == "" {
		sessionID = newID("sess")
	}

	user, err := h.repos.User.GetBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		if user.Username != d.Username && d.Username != "" {
			user.Username = d.Username
			if d.Preferences != nil {
				user.Preferences = d.Preferences
			}
			if updateErr := h.repos.User.Update(ctx, user); updateErr != nil {
				h.log.Warn("Failed to update user on join", "error", updateErr, "user_id", user.ID)
			}
		} else {
			h.repos.User.TouchLastSeen(ctx, user.ID)
		}
		return user

	case errors.Is(err, apperrors.ErrUserNotFound):
		user = &domain.User{
			ID:          uuid.New(),
			Username:    d.Username,
			SessionID:   sessionID,
			Preferences: d.Preferences,
			CreatedAt:   time.Now(),
			LastSeen:    time.Now(),
		}
		if createErr := h.repos.User.Create(ctx, user); createErr != nil {
			h.log.Warn("Failed to create user on join", "error", createErr, "session_id", sessionID)
		}
		return user

	default:
		h.log.Warn("User lookup failed, using ephemeral identity", "error", err, "session_id", sessionID)
		return &domain.User{
			ID:        uuid.New(),
			Username:  d.Username,
			SessionID: sessionID,
			CreatedAt: time.Now(),
			LastSeen:  time.Now(),
		}
	}
}

// disconnect - единая точка завершения соединения: вызывается из readPump.
func (h *Hub) disconnect(c *Client) {
	c.shutdown("connection closed")
	c.conn.Close()

	if s := c.boundSession(); s != nil {
		s.Detach(c)
		h.registry.Release(s)
	}

	h.releaseAddr(c.remoteAddr)
}

func (h *Hub) releaseAddr(addr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.repos.Quota.ReleaseConn(ctx, addr); err != nil {
		h.log.Warn("Failed to release connection quota", "error", err, "addr", addr)
	}
}
