package hub

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"collab_workspace/internal/config"
	"collab_workspace/internal/domain"
	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

// Состояния участника: Joining → Live → Departing → Gone.
type participantState int

const (
	stateJoining participantState = iota
	stateLive
	stateDeparting
	stateGone
)

type participant struct {
	userID         uuid.UUID
	username       string
	color          string
	joinedAt       time.Time
	lastActivityAt time.Time
	state          participantState
	client         *Client
}

type cursorState struct {
	pos CursorPosition
	ts  int64
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdFrame
	cmdDetach
	cmdSnapshot
	cmdSaved
	cmdSetDegraded
)

type command struct {
	kind    cmdKind
	client  *Client
	event   string
	payload any
	user    *domain.User
	value   any
	reply   chan any
}

type saveSnapshot struct {
	room    *domain.Room
	version int64
}

// Session - актор комнаты: единственная горутина, владеющая всем живым
// состоянием. Любая мутация и любая рассылка проходят через mailbox,
// что даёт общий порядок событий для всех участников.
type Session struct {
	roomID uuid.UUID
	room   *domain.Room
	cfg    *config.HubConfig
	log    logger.Logger
	sched  *Scheduler

	mailbox chan command
	done    chan struct{}
	closed  atomic.Bool

	seq int64

	// Лента активности не рассылается и нумеруется собственным счётчиком,
	// чтобы подряд идущие сообщения чата получали смежные seq
	activitySeq int64

	participants map[uuid.UUID]*participant
	clients      map[*Client]uuid.UUID

	chatSeen     map[string]struct{}
	chatSeenFIFO []string

	cursors map[uuid.UUID]cursorState
	typing  map[uuid.UUID]time.Time

	lastTypingSent   map[uuid.UUID]time.Time
	pendingPresence  map[uuid.UUID]cursorState
	lastPresenceSent map[uuid.UUID]time.Time

	degraded bool
}

func newSession(room *domain.Room, cfg *config.HubConfig, sched *Scheduler, log logger.Logger) *Session {
	s := &Session{
		roomID:           room.ID,
		room:             room,
		cfg:              cfg,
		log:              log.With("room_id", room.ID.String()),
		sched:            sched,
		mailbox:          make(chan command, 512),
		done:             make(chan struct{}),
		participants:     make(map[uuid.UUID]*participant),
		clients:          make(map[*Client]uuid.UUID),
		chatSeen:         make(map[string]struct{}),
		cursors:          make(map[uuid.UUID]cursorState),
		typing:           make(map[uuid.UUID]time.Time),
		lastTypingSent:   make(map[uuid.UUID]time.Time),
		pendingPresence:  make(map[uuid.UUID]cursorState),
		lastPresenceSent: make(map[uuid.UUID]time.Time),
	}

	// Кольцо чата и счётчик seq восстанавливаются из загруженной записи
	for i := range room.Chat {
		s.rememberChatID(room.Chat[i].ID)
		if room.Chat[i].Seq > s.seq {
			s.seq = room.Chat[i].Seq
		}
	}
	for i := range room.Activities {
		if room.Activities[i].Seq > s.activitySeq {
			s.activitySeq = room.Activities[i].Seq
		}
	}

	return s
}

func (s *Session) RoomID() uuid.UUID { return s.roomID }

// run - главный цикл актора. Тик коалесцирует presence, гасит typing по
// дедлайну и подчищает устаревшие курсоры.
func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.PresenceCoalesce)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.mailbox:
			s.handle(cmd)
		case <-ticker.C:
			s.tick()
		case <-s.done:
			return
		}
	}
}

func (s *Session) stop() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

func (s *Session) isClosed() bool { return s.closed.Load() }

func (s *Session) post(cmd command) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.mailbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// Join - синхронный вход участника. Возвращает ошибку допуска (RoomFull)
// либо nil после постановки снимка в очередь нового клиента.
func (s *Session) Join(c *Client, user *domain.User) error {
	reply := make(chan any, 1)
	if !s.post(command{kind: cmdJoin, client: c, user: user, reply: reply}) {
		return apperrors.NewHubError(apperrors.CodeInternalError, "room session is shutting down")
	}
	select {
	case res := <-reply:
		if err, ok := res.(error); ok && err != nil {
			return err
		}
		return nil
	case <-s.done:
		// Команда могла остаться в mailbox остановленной сессии
		return apperrors.NewHubError(apperrors.CodeInternalError, "room session is shutting down")
	}
}

// Dispatch - асинхронная передача проверенного события в mailbox.
func (s *Session) Dispatch(c *Client, event string, payload any) {
	s.post(command{kind: cmdFrame, client: c, event: event, payload: payload})
}

// Detach переводит участника к Gone после закрытия сокета.
func (s *Session) Detach(c *Client) {
	s.post(command{kind: cmdDetach, client: c})
}

// SnapshotForSave возвращает копию долговременных полей и текущую версию.
// Вызывается планировщиком персистентности вне горутины сессии.
func (s *Session) SnapshotForSave() (*domain.Room, int64, bool) {
	reply := make(chan any, 1)
	if !s.post(command{kind: cmdSnapshot, reply: reply}) {
		return nil, 0, false
	}
	select {
	case res := <-reply:
		snap := res.(saveSnapshot)
		return snap.room, snap.version, true
	case <-s.done:
		return nil, 0, false
	}
}

// Saved фиксирует новую версию после успешной записи.
func (s *Session) Saved(version int64) {
	s.post(command{kind: cmdSaved, value: version})
}

// SetDegraded помечает сессию деградировавшей по персистентности.
// Раздача событий продолжается из памяти.
func (s *Session) SetDegraded(degraded bool) {
	s.post(command{kind: cmdSetDegraded, value: degraded})
}

func (s *Session) handle(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		cmd.reply <- s.handleJoin(cmd.client, cmd.user)
	case cmdFrame:
		s.handleFrame(cmd.client, cmd.event, cmd.payload)
	case cmdDetach:
		s.removeParticipant(cmd.client, EventUserLeft)
	case cmdSnapshot:
		cmd.reply <- s.buildSaveSnapshot()
	case cmdSaved:
		s.room.Version = cmd.value.(int64)
	case cmdSetDegraded:
		was := s.degraded
		s.degraded = cmd.value.(bool)
		if s.degraded && !was {
			s.log.Warn("Session degraded: persistence failing, serving from memory")
		}
		if !s.degraded && was {
			s.log.Info("Session persistence recovered")
		}
	}
}

type participantInfo struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Color    string    `json:"color"`
	JoinedAt int64     `json:"joinedAt"`
}

type roomJoinedData struct {
	RoomID       string            `json:"roomId"`
	RoomName     string            `json:"roomName"`
	Participants []participantInfo `json:"participants"`
	CodeContent  string            `json:"codeContent"`
	CodeLanguage string            `json:"codeLanguage"`
	NotesContent string            `json:"notesContent"`
	CanvasData   json.RawMessage   `json:"canvasData,omitempty"`
	ChatHistory  []chatMessageData `json:"chatHistory"`
	Seq          int64             `json:"seq"`
}

// chatMessageData - исходящий кадр chat-message. Запись хранилища наружу
// не уходит: имена полей на проводе свои.
type chatMessageData struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	UserID      uuid.UUID `json:"userId"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	MessageType string    `json:"messageType"`
	Timestamp   int64     `json:"timestamp"`
	Color       string    `json:"color"`
}

func chatPayload(m domain.Message) chatMessageData {
	return chatMessageData{
		ID:          m.ID,
		Seq:         m.Seq,
		UserID:      m.UserID,
		Username:    m.Username,
		Text:        m.Text,
		MessageType: m.MessageType,
		Timestamp:   m.Timestamp,
		Color:       m.Color,
	}
}

type userJoinedData struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	Color     string    `json:"color"`
	JoinedAt  int64     `json:"joinedAt"`
	Seq       int64     `json:"seq"`
	Timestamp int64     `json:"timestamp"`
}

type userLeftData struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	Seq       int64     `json:"seq"`
	Timestamp int64     `json:"timestamp"`
}

func (s *Session) handleJoin(c *Client, user *domain.User) error {
	liveCount := 0
	for _, p := range s.participants {
		if p.state == stateJoining || p.state == stateLive {
			liveCount++
		}
	}

	prior, superseding := s.participants[user.ID]
	if !superseding && liveCount >= s.room.MaxParticipants {
		return apperrors.NewHubError(apperrors.CodeRoomFull, "room is at capacity")
	}

	colorIdx := len(s.participants)
	color := colorForIndex(colorIdx)

	if superseding {
		// Повторный вход того же пользователя вытесняет прежнее соединение
		color = prior.color
		s.supersede(prior)
	}

	now := time.Now()
	p := &participant{
		userID:         user.ID,
		username:       user.Username,
		color:          color,
		joinedAt:       now,
		lastActivityAt: now,
		state:          stateJoining,
		client:         c,
	}
	s.participants[user.ID] = p
	s.clients[c] = user.ID
	s.appendParticipantEver(user.SessionID)

	s.seq++
	snapshot := s.buildJoinSnapshot()
	raw, err := marshalFrame(EventRoomJoined, snapshot)
	if err != nil {
		s.log.Error("Failed to marshal join snapshot", "error", err)
		delete(s.participants, user.ID)
		delete(s.clients, c)
		return apperrors.NewHubError(apperrors.CodeInternalError, "failed to build snapshot")
	}
	c.enqueue(raw, true)
	p.state = stateLive

	s.broadcastExcept(EventUserJoined, userJoinedData{
		UserID:    p.userID,
		Username:  p.username,
		Color:     p.color,
		JoinedAt:  p.joinedAt.UnixMilli(),
		Seq:       s.seq,
		Timestamp: nowMillis(),
	}, c, true)

	s.recordActivity(domain.ActivityTypeJoin, p.username+" joined the room", "", &p.userID, &p.username)
	s.room.LastActivityAt = now
	s.sched.MarkDirty(s)

	s.log.Info("Participant joined", "user_id", p.userID, "username", p.username, "participants", len(s.participants))
	return nil
}

// supersede вытесняет прежнее соединение пользователя: направленный
// userDisconnected и закрытие, плюс рассылка остальным.
func (s *Session) supersede(prior *participant) {
	prior.state = stateDeparting
	data := userLeftData{
		UserID:    prior.userID,
		Username:  prior.username,
		Seq:       s.nextSeq(),
		Timestamp: nowMillis(),
	}
	if raw, err := marshalFrame(EventUserDisconnected, data); err == nil {
		prior.client.enqueue(raw, true)
		s.broadcastRawExcept(raw, prior.client, true)
	}
	delete(s.clients, prior.client)
	prior.state = stateGone
	prior.client.shutdown("superseded")
	s.cancelEphemeral(prior.userID)
}

func (s *Session) buildJoinSnapshot() roomJoinedData {
	infos := make([]participantInfo, 0, len(s.participants))
	for _, p := range s.participants {
		if p.state != stateJoining && p.state != stateLive {
			continue
		}
		infos = append(infos, participantInfo{
			UserID:   p.userID,
			Username: p.username,
			Color:    p.color,
			JoinedAt: p.joinedAt.UnixMilli(),
		})
	}

	history := make([]chatMessageData, 0, len(s.room.Chat))
	for _, m := range s.room.Chat {
		history = append(history, chatPayload(m))
	}

	return roomJoinedData{
		RoomID:       s.roomID.String(),
		RoomName:     s.room.Name,
		Participants: infos,
		CodeContent:  s.room.Code.Text,
		CodeLanguage: s.room.Code.Language,
		NotesContent: s.room.Notes,
		CanvasData:   json.RawMessage(s.room.Canvas),
		ChatHistory:  history,
		Seq:          s.seq,
	}
}

func (s *Session) handleFrame(c *Client, event string, payload any) {
	userID, bound := s.clients[c]
	if !bound {
		c.sendError(apperrors.CodeNotJoined, "join a room first")
		return
	}
	p, ok := s.participants[userID]
	if !ok || p.client != c {
		// Карта клиентов и карта участников разошлись - фатально для сессии
		s.fail("participant map divergence")
		return
	}
	p.lastActivityAt = time.Now()

	switch event {
	case EventLeaveRoom:
		s.removeParticipant(c, EventUserLeft)
	case EventCodeChange:
		s.applyCodeChange(p, payload.(*CodeChangeData))
	case EventNoteChange:
		s.applyNoteChange(p, payload.(*NoteChangeData))
	case EventDrawEvent:
		s.applyDrawEvent(p, payload.(*DrawEventData))
	case EventChatMessage:
		s.applyChatMessage(p, payload.(*ChatMessageData))
	case EventPresenceUpdate:
		s.applyPresenceUpdate(p, payload.(*PresenceUpdateData))
	case EventTypingStart:
		s.applyTypingStart(p)
	case EventTypingStop:
		s.applyTypingStop(p, true)
	case EventPing:
		s.sendTo(c, EventPong, map[string]int64{"timestamp": nowMillis()}, false)
	default:
		c.sendError(apperrors.CodeProtocolError, "unexpected event "+event)
	}
}

type codeChangedData struct {
	Content   string          `json:"content"`
	Language  string          `json:"language"`
	Metadata  *CursorPosition `json:"metadata,omitempty"`
	Seq       int64           `json:"seq"`
	Timestamp int64           `json:"timestamp"`
}

func (s *Session) applyCodeChange(p *participant, d *CodeChangeData) {
	// Последняя запись в mailbox побеждает; обе рассылки уходят в одном
	// порядке всем, так что клиенты сходятся к одному состоянию
	s.room.Code.Text = d.Content
	s.room.Code.Language = d.Language
	s.touch()

	s.broadcastExcept(EventCodeChanged, codeChangedData{
		Content:   d.Content,
		Language:  d.Language,
		Metadata:  d.CursorPosition,
		Seq:       s.nextSeq(),
		Timestamp: nowMillis(),
	}, p.client, true)

	s.recordActivity(domain.ActivityTypeCode, p.username+" edited code", d.Language, &p.userID, &p.username)
	s.sched.MarkDirty(s)
}

type noteChangedData struct {
	Content   string `json:"content"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Session) applyNoteChange(p *participant, d *NoteChangeData) {
	// Заметки заменяются целиком, без посимвольного слияния
	s.room.Notes = d.Content
	s.touch()

	s.broadcastExcept(EventNoteChanged, noteChangedData{
		Content:   d.Content,
		Seq:       s.nextSeq(),
		Timestamp: nowMillis(),
	}, p.client, true)

	s.recordActivity(domain.ActivityTypeNotes, p.username+" edited notes", "", &p.userID, &p.username)
	s.sched.MarkDirty(s)
}

type drawingUpdatedData struct {
	DrawingData json.RawMessage `json:"drawingData"`
	Action      string          `json:"action"`
	Seq         int64           `json:"seq"`
	Timestamp   int64           `json:"timestamp"`
}

func (s *Session) applyDrawEvent(p *participant, d *DrawEventData) {
	// Сцена холста - непрозрачный blob; action транслируется как есть
	s.room.Canvas = []byte(d.DrawingData)
	s.touch()

	s.broadcastExcept(EventDrawingUpdated, drawingUpdatedData{
		DrawingData: d.DrawingData,
		Action:      d.Action,
		Seq:         s.nextSeq(),
		Timestamp:   nowMillis(),
	}, p.client, true)

	s.recordActivity(domain.ActivityTypeDrawing, p.username+" updated the whiteboard", d.Action, &p.userID, &p.username)
	s.sched.MarkDirty(s)
}

func (s *Session) applyChatMessage(p *participant, d *ChatMessageData) {
	id := d.ID
	if id == "" {
		id = newID("msg")
	}
	// Повторная доставка того же id - no-op
	if _, seen := s.chatSeen[id]; seen {
		return
	}

	msg := domain.Message{
		ID:          id,
		Seq:         s.nextSeq(),
		UserID:      p.userID,
		Username:    p.username,
		Text:        d.Message,
		MessageType: d.MessageType,
		Timestamp:   nowMillis(),
		Color:       p.color,
	}

	s.room.Chat = append(s.room.Chat, msg)
	if len(s.room.Chat) > s.cfg.ChatRingCap {
		s.room.Chat = s.room.Chat[len(s.room.Chat)-s.cfg.ChatRingCap:]
	}
	s.rememberChatID(id)
	s.touch()

	// Чат уходит всем, включая отправителя
	s.broadcastExcept(EventChatMessage, chatPayload(msg), nil, true)

	s.recordActivity(domain.ActivityTypeMessage, p.username+" sent a message", "", &p.userID, &p.username)
	s.sched.AppendChat(s.roomID, msg, s.cfg.ChatRingCap)
	s.sched.MarkDirty(s)
}

type presenceUpdatedData struct {
	UserID         uuid.UUID      `json:"userId"`
	CursorPosition CursorPosition `json:"cursorPosition"`
	Timestamp      int64          `json:"timestamp"`
}

func (s *Session) applyPresenceUpdate(p *participant, d *PresenceUpdateData) {
	if d.CursorPosition == nil {
		return
	}
	st := cursorState{pos: *d.CursorPosition, ts: nowMillis()}
	s.cursors[p.userID] = st
	// Коалесцирование: копится только последнее значение, рассылает тик
	s.pendingPresence[p.userID] = st
}

type typingData struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username,omitempty"`
}

func (s *Session) applyTypingStart(p *participant) {
	_, wasTyping := s.typing[p.userID]
	s.typing[p.userID] = time.Now().Add(s.cfg.TypingDeadline)

	// Не чаще одного typing-start в секунду на пользователя
	if last, ok := s.lastTypingSent[p.userID]; ok && time.Since(last) < time.Second && wasTyping {
		return
	}
	s.lastTypingSent[p.userID] = time.Now()
	s.broadcastExcept(EventTypingStart, typingData{UserID: p.userID, Username: p.username}, p.client, false)
}

func (s *Session) applyTypingStop(p *participant, explicit bool) {
	if _, ok := s.typing[p.userID]; !ok && explicit {
		return
	}
	delete(s.typing, p.userID)
	s.broadcastExcept(EventTypingStop, typingData{UserID: p.userID}, p.client, false)
}

// removeParticipant - общий путь leave / закрытия сокета.
func (s *Session) removeParticipant(c *Client, event string) {
	userID, bound := s.clients[c]
	if !bound {
		return
	}
	p, ok := s.participants[userID]
	if !ok {
		s.fail("participant map divergence")
		return
	}
	if p.client != c {
		// Соединение уже вытеснено более новым входом
		delete(s.clients, c)
		return
	}

	p.state = stateDeparting
	delete(s.clients, c)
	delete(s.participants, userID)
	s.cancelEphemeral(userID)
	p.state = stateGone

	s.broadcastExcept(event, userLeftData{
		UserID:    p.userID,
		Username:  p.username,
		Seq:       s.nextSeq(),
		Timestamp: nowMillis(),
	}, c, true)

	s.recordActivity(domain.ActivityTypeLeave, p.username+" left the room", "", &p.userID, &p.username)
	s.room.LastActivityAt = time.Now()
	s.sched.MarkDirty(s)

	s.log.Info("Participant left", "user_id", p.userID, "username", p.username, "participants", len(s.participants))
}

// cancelEphemeral снимает typing и курсор ушедшего участника.
func (s *Session) cancelEphemeral(userID uuid.UUID) {
	delete(s.cursors, userID)
	delete(s.pendingPresence, userID)
	delete(s.lastPresenceSent, userID)
	delete(s.lastTypingSent, userID)
	if _, ok := s.typing[userID]; ok {
		delete(s.typing, userID)
		s.broadcastExcept(EventTypingStop, typingData{UserID: userID}, nil, false)
	}
}

func (s *Session) tick() {
	now := time.Now()

	// Сброс накопленных presence-обновлений, не чаще интервала коалесцирования
	for userID, st := range s.pendingPresence {
		if last, ok := s.lastPresenceSent[userID]; ok && now.Sub(last) < s.cfg.PresenceCoalesce {
			continue
		}
		p, ok := s.participants[userID]
		if !ok {
			delete(s.pendingPresence, userID)
			continue
		}
		s.broadcastExcept(EventPresenceUpdated, presenceUpdatedData{
			UserID:         userID,
			CursorPosition: st.pos,
			Timestamp:      st.ts,
		}, p.client, false)
		s.lastPresenceSent[userID] = now
		delete(s.pendingPresence, userID)
	}

	// Автопогашение typing по дедлайну
	for userID, deadline := range s.typing {
		if now.After(deadline) {
			delete(s.typing, userID)
			s.broadcastExcept(EventTypingStop, typingData{UserID: userID}, nil, false)
		}
	}

	// Курсоры старше TTL вычищаются
	cutoff := now.Add(-s.cfg.CursorTTL).UnixMilli()
	for userID, st := range s.cursors {
		if st.ts < cutoff {
			delete(s.cursors, userID)
		}
	}
}

func (s *Session) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *Session) nextActivitySeq() int64 {
	s.activitySeq++
	return s.activitySeq
}

func (s *Session) touch() {
	s.room.LastActivityAt = time.Now()
}

func (s *Session) rememberChatID(id string) {
	if _, ok := s.chatSeen[id]; ok {
		return
	}
	s.chatSeen[id] = struct{}{}
	s.chatSeenFIFO = append(s.chatSeenFIFO, id)
	if len(s.chatSeenFIFO) > s.cfg.ChatRingCap {
		oldest := s.chatSeenFIFO[0]
		s.chatSeenFIFO = s.chatSeenFIFO[1:]
		delete(s.chatSeen, oldest)
	}
}

func (s *Session) appendParticipantEver(sessionID string) {
	for _, id := range s.room.ParticipantsEver {
		if id == sessionID {
			return
		}
	}
	s.room.ParticipantsEver = append(s.room.ParticipantsEver, sessionID)
}

func (s *Session) recordActivity(activityType, description, details string, userID *uuid.UUID, username *string) {
	entry := domain.ActivityEntry{
		ID:          newID("act"),
		Seq:         s.nextActivitySeq(),
		Type:        activityType,
		Description: description,
		Details:     details,
		Timestamp:   nowMillis(),
		UserID:      userID,
		Username:    username,
	}
	s.room.Activities = append(s.room.Activities, entry)
	if len(s.room.Activities) > s.cfg.ActivityRingCap {
		s.room.Activities = s.room.Activities[len(s.room.Activities)-s.cfg.ActivityRingCap:]
	}
	s.sched.AppendActivity(s.roomID, entry)
}

// broadcastExcept маршалит кадр один раз и раскладывает по очередям живых
// участников. except == nil означает рассылку всем.
func (s *Session) broadcastExcept(event string, data any, except *Client, critical bool) {
	raw, err := marshalFrame(event, data)
	if err != nil {
		s.log.Error("Failed to marshal broadcast frame", "error", err, "event", event)
		return
	}
	s.broadcastRawExcept(raw, except, critical)
}

func (s *Session) broadcastRawExcept(raw []byte, except *Client, critical bool) {
	for _, p := range s.participants {
		if p.state != stateLive && p.state != stateJoining {
			continue
		}
		if p.client == except {
			continue
		}
		p.client.enqueue(raw, critical)
	}
}

func (s *Session) sendTo(c *Client, event string, data any, critical bool) {
	raw, err := marshalFrame(event, data)
	if err != nil {
		s.log.Error("Failed to marshal frame", "error", err, "event", event)
		return
	}
	c.enqueue(raw, critical)
}

// fail - нарушение внутреннего инварианта: фатально для сессии.
// Все участники получают InternalError и закрываются; опустевшая сессия
// уйдёт через обычное вытеснение реестра.
func (s *Session) fail(reason string) {
	s.log.Error("Session state corrupted, shutting down", "reason", reason)
	raw := errorFrame(apperrors.CodeInternalError, "room session failed")
	for _, p := range s.participants {
		p.client.enqueue(raw, true)
		p.client.shutdown("session failure")
	}
	s.participants = make(map[uuid.UUID]*participant)
	s.clients = make(map[*Client]uuid.UUID)
	s.stop()
}

func (s *Session) buildSaveSnapshot() saveSnapshot {
	room := &domain.Room{
		ID:              s.room.ID,
		Name:            s.room.Name,
		Description:     s.room.Description,
		CreatedBy:       s.room.CreatedBy,
		MaxParticipants: s.room.MaxParticipants,
		Settings:        s.room.Settings,
		Code:            s.room.Code,
		Notes:           s.room.Notes,
		Active:          s.room.Active,
		Version:         s.room.Version,
		LastActivityAt:  s.room.LastActivityAt,
		CreatedAt:       s.room.CreatedAt,
		UpdatedAt:       s.room.UpdatedAt,
	}
	room.Canvas = append([]byte(nil), s.room.Canvas...)
	room.ParticipantsEver = append([]string(nil), s.room.ParticipantsEver...)
	return saveSnapshot{room: room, version: s.room.Version}
}
