package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

const (
	// Время на запись одного кадра клиенту
	writeWait = 10 * time.Second

	// Дедлайн чтения; сбрасывается каждым pong и входящим кадром
	pongWait = 60 * time.Second

	// Период ping; должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	// Окно и порог для повторных протокольных ошибок
	protocolErrorWindow = 10 * time.Second
	protocolErrorLimit  = 5

	// Соединение без единого кадра данных дольше этого срока закрывается,
	// даже если pong приходят исправно
	idleConnMax = 5 * time.Minute
)

type clientState int32

const (
	clientFresh clientState = iota
	clientBound
	clientClosed
)

// Client - одно клиентское соединение: разбор и валидация входящих кадров,
// ограничение частоты, ограниченная исходящая очередь. Привязывается не
// более чем к одной комнате; весь фан-аут идёт через сессию.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  logger.Logger

	send   chan []byte
	bucket *tokenBucket

	remoteAddr string

	mu      sync.Mutex
	state   clientState
	session *Session

	protoErrs []time.Time

	// Читается и пишется только горутиной readPump
	lastFrame time.Time

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, remoteAddr string, log logger.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		log:        log,
		send:       make(chan []byte, hub.cfg.Hub.OutboundQueueDepth),
		bucket:     newTokenBucket(float64(hub.cfg.Hub.EventRateSustain), hub.cfg.Hub.EventRateBurst),
		remoteAddr: remoteAddr,
		state:      clientFresh,
	}
}

func (c *Client) bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == clientBound
}

func (c *Client) bind(s *Session) {
	c.mu.Lock()
	c.state = clientBound
	c.session = s
	c.mu.Unlock()
}

func (c *Client) boundSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// enqueue кладёт кадр в исходящую очередь без блокировки. Переполнение
// для критичных категорий (чат/код/заметки/холст/входы-выходы) закрывает
// соединение как slow-consumer; потерю допускают только presence/typing.
func (c *Client) enqueue(raw []byte, critical bool) {
	c.mu.Lock()
	if c.state == clientClosed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- raw:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		if critical {
			c.log.Warn("Outbound queue overflow, dropping connection", "addr", c.remoteAddr)
			c.shutdown("slow-consumer")
		}
	}
}

func (c *Client) sendError(code, message string) {
	c.enqueue(errorFrame(code, message), true)
}

// shutdown переводит соединение в Closed и закрывает исходящую очередь.
// writePump дописывает буферизованные кадры и закрывает сокет.
func (c *Client) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = clientClosed
		close(c.send)
		c.mu.Unlock()
		c.log.Debug("Connection shutdown", "reason", reason, "addr", c.remoteAddr)
	})
}

// noteProtocolError отмечает протокольную ошибку; возвращает true, когда
// порог повторов в окне превышен и соединение пора закрывать.
func (c *Client) noteProtocolError() bool {
	now := time.Now()
	cutoff := now.Add(-protocolErrorWindow)
	kept := c.protoErrs[:0]
	for _, t := range c.protoErrs {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.protoErrs = append(kept, now)
	return len(c.protoErrs) > protocolErrorLimit
}

func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	maxFrame := int64(c.hub.cfg.Hub.MaxCanvasBytes) + 64*1024
	c.conn.SetReadLimit(maxFrame)

	// Рукопожатие: первый кадр должен прийти в срок и быть joinRoom
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.Hub.HandshakeTimeout))
	c.lastFrame = time.Now()
	c.conn.SetPongHandler(func(string) error {
		if time.Since(c.lastFrame) > idleConnMax {
			return errors.New("connection idle for too long")
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket read error", "error", err, "addr", c.remoteAddr)
			}
			return
		}
		c.lastFrame = time.Now()

		if !c.bucket.Allow() {
			c.sendError(apperrors.CodeRateLimited, "event rate limit exceeded")
			continue
		}

		if !c.bound() {
			if done := c.handleHandshake(raw); done {
				return
			}
			continue
		}

		frame, err := ParseFrame(raw)
		if err != nil {
			c.replyError(err)
			if c.noteProtocolError() {
				c.shutdown("repeated protocol errors")
				return
			}
			continue
		}

		if frame.Event == EventJoinRoom {
			// Повторная привязка запрещена
			c.sendError(apperrors.CodeProtocolError, "connection is already bound to a room")
			if c.noteProtocolError() {
				c.shutdown("repeated protocol errors")
				return
			}
			continue
		}

		payload, err := ValidateFrame(frame, &c.hub.cfg.Hub)
		if err != nil {
			c.replyError(err)
			var hubErr *apperrors.HubError
			if errors.As(err, &hubErr) && hubErr.Code == apperrors.CodeProtocolError && c.noteProtocolError() {
				c.shutdown("repeated protocol errors")
				return
			}
			continue
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.boundSession().Dispatch(c, frame.Event, payload)
	}
}

// handleHandshake обрабатывает кадр до привязки. Возвращает true, когда
// соединение надо закрыть.
func (c *Client) handleHandshake(raw []byte) bool {
	frame, err := ParseFrame(raw)
	if err != nil {
		// До рукопожатия мусор закрывает соединение сразу
		c.replyError(err)
		c.shutdown("bad handshake")
		return true
	}
	if frame.Event != EventJoinRoom {
		c.sendError(apperrors.CodeProtocolError, "first event must be joinRoom")
		c.shutdown("bad handshake")
		return true
	}

	payload, err := ValidateFrame(frame, &c.hub.cfg.Hub)
	if err != nil {
		c.replyError(err)
		c.shutdown("bad handshake")
		return true
	}

	if err := c.hub.join(c, payload.(*JoinRoomData)); err != nil {
		c.replyError(err)
		// Отказ допуска (RoomFull) не закрывает соединение; даём вторую
		// попытку в пределах нового дедлайна рукопожатия
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.Hub.HandshakeTimeout))
		return false
	}

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return false
}

func (c *Client) replyError(err error) {
	var hubErr *apperrors.HubError
	if errors.As(err, &hubErr) {
		c.sendError(hubErr.Code, hubErr.Message)
		return
	}
	c.sendError(apperrors.CodeInternalError, "internal error")
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
