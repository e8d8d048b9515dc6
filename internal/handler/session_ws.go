package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"livesession-backend/internal/model"
	"livesession-backend/internal/session"
	"livesession-backend/internal/whiteboard"
)

const wsOpTimeout = 10 * time.Second

// SessionWSHandler 세션 WebSocket 핸들러
//
// It keeps the connection fan-out maps and implements session.Notifier, so
// hubs stay transport-agnostic: the hub decides who hears about a mutation,
// this handler decides how the bytes get to them.
type SessionWSHandler struct {
	registry *session.Registry

	mu    sync.RWMutex
	conns map[string]map[string]*wsClient // sessionID -> identity -> client
}

// wsClient 연결된 클라이언트
type wsClient struct {
	identity string
	conn     *websocket.Conn
	writeMu  sync.Mutex // websocket.Conn is not safe for concurrent writes
}

func (c *wsClient) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Write to %s failed: %v", c.identity, err)
	}
}

// NewSessionWSHandler 핸들러 생성
//
// The handler is the registry's Notifier, so it exists before the registry
// and gets the registry via Bind once both sides are built.
func NewSessionWSHandler() *SessionWSHandler {
	return &SessionWSHandler{
		conns: make(map[string]map[string]*wsClient),
	}
}

// Bind 레지스트리 연결
func (h *SessionWSHandler) Bind(registry *session.Registry) {
	h.registry = registry
}

// Send delivers an event to specific identities in a session.
func (h *SessionWSHandler) Send(sessionID string, identities []string, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := Envelope{Event: event, Data: data}

	h.mu.RLock()
	clients := h.conns[sessionID]
	targets := make([]*wsClient, 0, len(identities))
	for _, identity := range identities {
		if c, ok := clients[identity]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(env)
	}
}

// Broadcast delivers an event to every connection in a session, optionally
// excluding one identity (the initiator reconciles via its ack instead).
func (h *SessionWSHandler) Broadcast(sessionID string, event string, payload any, excludeIdentity string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := Envelope{Event: event, Data: data}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.conns[sessionID]))
	for identity, c := range h.conns[sessionID] {
		if excludeIdentity != "" && identity == excludeIdentity {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(env)
	}
}

// register installs the client as the identity's current connection and
// returns the evicted predecessor, if any (e.g. a reconnect racing its stale
// socket). Closing the evicted conn is the caller's job.
func (h *SessionWSHandler) register(sessionID string, client *wsClient) *wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.conns[sessionID]
	if !ok {
		clients = make(map[string]*wsClient)
		h.conns[sessionID] = clients
	}
	old := clients[client.identity]
	clients[client.identity] = client
	return old
}

// unregister drops the mapping only if it still points at this connection,
// and reports whether it did. An evicted connection returns false; its
// identity is still live on the replacement socket.
func (h *SessionWSHandler) unregister(sessionID string, client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.conns[sessionID]
	if !ok {
		return false
	}
	if clients[client.identity] != client {
		return false
	}
	delete(clients, client.identity)
	if len(clients) == 0 {
		delete(h.conns, sessionID)
	}
	return true
}

// HandleWebSocket WebSocket 연결 처리
func (h *SessionWSHandler) HandleWebSocket(c *websocket.Conn) {
	sessionID, ok1 := c.Locals("sessionId").(string)
	identity, ok2 := c.Locals("identity").(string)
	displayName, _ := c.Locals("displayName").(string)
	roleStr, ok3 := c.Locals("role").(string)

	role := model.Role(roleStr)
	if !ok1 || !ok2 || !ok3 || sessionID == "" || identity == "" || !role.Valid() {
		c.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","data":{"code":"bad_request","error":"invalid session"}}`))
		c.Close()
		return
	}

	hub := h.registry.GetOrCreate(sessionID)
	client := &wsClient{identity: identity, conn: c}
	if old := h.register(sessionID, client); old != nil {
		old.conn.Close()
	}
	log.Printf("[WS] %s connected to session %s", identity, sessionID)

	defer func() {
		// An evicted socket must not report its identity disconnected: the
		// replacement connection owns the participant now, and marking it
		// disconnected would arm a grace timer against a live client.
		current := h.unregister(sessionID, client)
		c.Close()
		if current {
			hub.Disconnect(identity)
		}
		log.Printf("[WS] %s disconnected from session %s", identity, sessionID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			continue
		}

		h.dispatch(hub, client, identity, displayName, role, env)
	}
}

func (h *SessionWSHandler) dispatch(hub *session.Hub, client *wsClient, identity, displayName string, role model.Role, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	ack := func(data map[string]any) {
		client.send(Envelope{Event: "ack", ID: env.ID, Data: mustJSON(data)})
	}

	switch env.Event {
	case EvtJoinRoom:
		res, err := hub.Join(identity, displayName, role)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"result": res}))

	case EvtLeaveRoom:
		hub.Leave(identity)
		ack(ackOK(nil))

	case EvtWaitingAdmit:
		var p WaitingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Identity == "" {
			ack(ackErr(model.ErrValidation))
			return
		}
		if err := hub.Admit(identity, p.Identity); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtWaitingRemove:
		var p WaitingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Identity == "" {
			ack(ackErr(model.ErrValidation))
			return
		}
		if err := hub.RemoveWaiting(identity, p.Identity); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtWaitingAll:
		if err := hub.AdmitAll(identity); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtParticipants:
		var p ParticipantsPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				ack(ackErr(model.ErrValidation))
				return
			}
		}
		parts, err := hub.Participants(p.Room)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"participants": parts}))

	case EvtPermissions:
		var p PermissionsPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Identity == "" {
			ack(ackErr(model.ErrValidation))
			return
		}
		if err := hub.SetPermissions(identity, p.Identity, p.Audio, p.Video, p.Screenshare); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtBoardJoin:
		state, err := hub.WhiteboardJoin(identity)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"state": state}))

	case EvtStrokeAdd:
		var p StrokeAddPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			ack(ackErr(model.ErrValidation))
			return
		}
		stroke, err := hub.AddStroke(ctx, identity, whiteboard.Input{
			ClientID: p.ClientID,
			Tool:     p.Tool,
			Payload:  p.Payload,
			Color:    p.Color,
			Size:     p.Size,
		})
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"seq": stroke.Seq, "clientId": stroke.ClientID}))

	case EvtStrokeDrop:
		var p StrokeRevokePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || len(p.Seqs) == 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		if err := hub.RevokeStrokes(ctx, identity, p.Seqs); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtBoardUndo:
		seq, undone, err := hub.UndoStroke(ctx, identity)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"undone": undone, "seq": seq}))

	case EvtBoardRedo:
		stroke, redone, err := hub.RedoStroke(ctx, identity)
		if err != nil {
			ack(ackErr(err))
			return
		}
		data := map[string]any{"redone": redone}
		if redone {
			data["stroke"] = stroke
		}
		ack(ackOK(data))

	case EvtBoardClear:
		if err := hub.ClearBoard(ctx, identity); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtBoardLock:
		var p BoardLockPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			ack(ackErr(model.ErrValidation))
			return
		}
		if err := hub.SetBoardLock(identity, p.Locked); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtBreakoutCreate:
		snap, err := hub.CreateBreakout(ctx, identity)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"room": snap}))

	case EvtBreakoutExtend:
		var p BreakoutExtendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Index <= 0 || p.AddMinutes <= 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		closesAt, err := hub.ExtendBreakout(identity, p.Index, p.AddMinutes)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"closesAt": closesAt}))

	case EvtBreakoutClose:
		var p BreakoutIndexPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Index <= 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		members, err := hub.CloseBreakout(ctx, identity, p.Index)
		if err != nil {
			// Closing an already-closed room is a success from the caller's
			// point of view.
			if model.ErrorCode(err) == "already_closed" {
				ack(ackOK(nil))
				return
			}
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"members": members}))

	case EvtBreakoutStream:
		var p BreakoutIndexPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Index <= 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		stream, err := hub.StartBreakoutStream(ctx, identity, p.Index)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"playbackUrl": stream.PlaybackURL}))

	case EvtBreakoutList:
		var p BreakoutListPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				ack(ackErr(model.ErrValidation))
				return
			}
		}
		ack(ackOK(map[string]any{"rooms": hub.ListBreakouts(p.All)}))

	case EvtMoveTo:
		var p MovePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Index <= 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		target := p.Identity
		if target == "" {
			target = identity
		}
		if err := hub.MoveTo(identity, target, p.Index); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtMoveBack:
		var p MovePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Index <= 0 {
			ack(ackErr(model.ErrValidation))
			return
		}
		target := p.Identity
		if target == "" {
			target = identity
		}
		if err := hub.MoveBack(identity, target, p.Index); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtChatSend:
		var p ChatSendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			ack(ackErr(model.ErrValidation))
			return
		}
		delivery, err := hub.SendChat(ctx, identity, p.Scope, p.To, p.Content)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"message": delivery.Message}))

	case EvtChatHistory:
		var p ChatHistoryPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			ack(ackErr(model.ErrValidation))
			return
		}
		msgs, err := hub.ChatHistory(ctx, identity, p.Scope, p.With)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"messages": msgs}))

	case EvtStreamStart:
		stream, err := hub.StartStream(ctx, identity)
		if err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(map[string]any{"playbackUrl": stream.PlaybackURL}))

	case EvtStreamStop:
		if err := hub.StopStream(ctx, identity); err != nil {
			ack(ackErr(err))
			return
		}
		ack(ackOK(nil))

	case EvtSessionEnd:
		if err := hub.End(ctx, identity); err != nil {
			ack(ackErr(err))
			return
		}
		h.registry.Remove(hub.ID)
		ack(ackOK(nil))

	default:
		ack(map[string]any{"ok": false, "code": "bad_request", "error": "unknown event: " + env.Event})
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
