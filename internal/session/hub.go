package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"livesession-backend/internal/breakout"
	"livesession-backend/internal/chat"
	"livesession-backend/internal/config"
	"livesession-backend/internal/media"
	"livesession-backend/internal/model"
	"livesession-backend/internal/presence"
	"livesession-backend/internal/store"
	"livesession-backend/internal/whiteboard"
)

// Deps 허브 구성 의존성
type Deps struct {
	Notifier  Notifier
	Media     media.Service
	Strokes   store.Strokes
	Messages  store.Messages
	Breakouts store.Breakouts
	ChatCache chat.Cache
	Presence  *presence.Manager
	Cfg       config.SessionConfig
}

// Hub owns the authoritative in-memory state of one session and serializes
// every mutating operation through a single mutex, which is what keeps the
// stroke counter and room-membership invariants correct without per-field
// locks. A failure inside one hub never touches another session's hub.
type Hub struct {
	ID string

	mu           sync.Mutex
	state        model.SessionState
	participants map[string]*Participant
	waiting      map[string]*WaitingEntry
	mainStream   *media.StreamInfo
	lastActive   time.Time
	createdAt    time.Time

	board *whiteboard.Board
	rooms *breakout.Rooms
	chat  *chat.Router

	deps Deps
}

// JoinResult join-room 응답
type JoinResult struct {
	Waiting      bool                  `json:"waiting"`
	Rejoined     bool                  `json:"rejoined"`
	Room         int                   `json:"room"`
	MediaToken   string                `json:"mediaToken,omitempty"`
	Participants []ParticipantSnapshot `json:"participants"`
	WaitingRoom  []WaitingSnapshot     `json:"waitingRoom"`
}

// NewHub 허브 생성
func NewHub(id string, deps Deps) *Hub {
	h := &Hub{
		ID:           id,
		state:        model.SessionLobby,
		participants: make(map[string]*Participant),
		waiting:      make(map[string]*WaitingEntry),
		lastActive:   time.Now(),
		createdAt:    time.Now(),
		board:        whiteboard.NewBoard(id, deps.Cfg.RecentStrokeWindow, deps.Strokes),
		chat:         chat.NewRouter(id, deps.Messages, deps.ChatCache),
		deps:         deps,
	}

	defaultDur := time.Duration(deps.Cfg.BreakoutDefaultMinutes) * time.Minute
	h.rooms = breakout.NewRooms(id, deps.Media, deps.Breakouts, defaultDur)
	// Auto-close re-enters the hub so it runs through the same serialized
	// path as a manual close.
	h.rooms.SetExpiryHandler(func(index int) {
		if _, err := h.closeBreakout(context.Background(), index); err != nil {
			log.Printf("[Hub %s] Auto-close of breakout #%d: %v", id, index, err)
		}
	})

	log.Printf("[Hub %s] Created", id)
	return h
}

// mainRoomName is the media room handle of the session's Main room.
func (h *Hub) mainRoomName() string {
	return h.ID
}

func (h *Hub) touchLocked() {
	h.lastActive = time.Now()
}

// =============================================================================
// Roster view (chat eligibility) — methods run under the hub lock.
// =============================================================================

type rosterView struct{ h *Hub }

func (r rosterView) RoleOf(identity string) (model.Role, bool) {
	p, ok := r.h.participants[identity]
	if !ok {
		return "", false
	}
	return p.Role, true
}

func (r rosterView) IsWaiting(identity string) bool {
	_, ok := r.h.waiting[identity]
	return ok
}

func (r rosterView) Admitted() map[string]model.Role {
	out := make(map[string]model.Role, len(r.h.participants))
	for identity, p := range r.h.participants {
		out[identity] = p.Role
	}
	return out
}

func (r rosterView) StreamActive() bool {
	return r.h.mainStream != nil
}

// =============================================================================
// Join / waiting room / leave
// =============================================================================

// Join admits privileged roles and observers straight into Main; a
// Participant role lands in the waiting room until a moderator admits them.
// A rejoin within the reconnect grace window reattaches the existing slot.
func (h *Hub) Join(identity, displayName string, role model.Role) (*JoinResult, error) {
	if identity == "" || !role.Valid() {
		return nil, fmt.Errorf("%w: identity and role are required", model.ErrValidation)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == model.SessionEnded {
		return nil, model.ErrSessionEnded
	}
	h.touchLocked()

	// Reconnect path: the slot survived the grace window.
	if p, ok := h.participants[identity]; ok {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		p.Connected = true
		if h.deps.Presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := h.deps.Presence.ClearDisconnected(ctx, h.ID, identity); err != nil {
				log.Printf("[Hub %s] Failed to clear grace marker for %s: %v", h.ID, identity, err)
			}
		}

		res := &JoinResult{
			Rejoined:     true,
			Room:         p.Room,
			MediaToken:   h.mediaTokenFor(p),
			Participants: h.participantsLocked(0),
			WaitingRoom:  h.waitingLocked(),
		}
		h.broadcastRosterLocked(identity)
		log.Printf("[Hub %s] %s rejoined (room %d)", h.ID, identity, p.Room)
		return res, nil
	}

	if role == model.RoleParticipant {
		if _, ok := h.waiting[identity]; !ok {
			h.waiting[identity] = &WaitingEntry{
				Identity:    identity,
				DisplayName: displayName,
				Email:       identity,
				Role:        role,
				JoinedAt:    time.Now(),
			}
			log.Printf("[Hub %s] %s waiting for admission", h.ID, identity)
		}
		res := &JoinResult{
			Waiting:     true,
			WaitingRoom: h.waitingLocked(),
		}
		h.broadcastRosterLocked(identity)
		return res, nil
	}

	p := h.addParticipantLocked(identity, displayName, role)
	res := &JoinResult{
		Room:         0,
		MediaToken:   h.mediaTokenFor(p),
		Participants: h.participantsLocked(0),
		WaitingRoom:  h.waitingLocked(),
	}
	h.broadcastRosterLocked(identity)
	log.Printf("[Hub %s] %s joined Main as %s", h.ID, identity, role)
	return res, nil
}

func (h *Hub) addParticipantLocked(identity, displayName string, role model.Role) *Participant {
	p := &Participant{
		Identity:        identity,
		DisplayName:     displayName,
		Role:            role,
		Room:            0,
		Connected:       true,
		CanPublishAudio: true,
		CanPublishVideo: true,
		CanScreenshare:  role.Privileged(),
		JoinedAt:        time.Now(),
	}
	h.participants[identity] = p
	if h.state == model.SessionLobby {
		h.state = model.SessionLive
	}
	return p
}

func (h *Hub) mediaTokenFor(p *Participant) string {
	room := h.mainRoomName()
	if p.Room != 0 {
		if br, ok := h.rooms.Get(p.Room); ok {
			room = br.RoomName
		}
	}
	token, err := h.deps.Media.JoinToken(room, p.Identity, p.DisplayName)
	if err != nil {
		log.Printf("[Hub %s] Failed to mint media token for %s: %v", h.ID, p.Identity, err)
		return ""
	}
	return token
}

// Admit moves a waiting entrant into Main. NotFound if they are not waiting.
func (h *Hub) Admit(actor, identity string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return err
	}
	return h.admitLocked(identity)
}

func (h *Hub) admitLocked(identity string) error {
	entry, ok := h.waiting[identity]
	if !ok {
		return fmt.Errorf("%w: %s is not waiting", model.ErrNotFound, identity)
	}
	delete(h.waiting, identity)
	h.touchLocked()

	p := h.addParticipantLocked(entry.Identity, entry.DisplayName, entry.Role)

	h.deps.Notifier.Send(h.ID, []string{identity}, EventParticipantAdmitted, map[string]any{
		"sessionId":    h.ID,
		"mediaToken":   h.mediaTokenFor(p),
		"participants": h.participantsLocked(0),
	})
	h.broadcastRosterLocked("")
	log.Printf("[Hub %s] Admitted %s", h.ID, identity)
	return nil
}

// AdmitAll admits every waiting entrant.
func (h *Hub) AdmitAll(actor string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return err
	}

	identities := make([]string, 0, len(h.waiting))
	for identity := range h.waiting {
		identities = append(identities, identity)
	}
	for _, identity := range identities {
		if err := h.admitLocked(identity); err != nil {
			return err
		}
	}
	return nil
}

// RemoveWaiting removes an entrant from the waiting room without admitting.
func (h *Hub) RemoveWaiting(actor, identity string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return err
	}
	if _, ok := h.waiting[identity]; !ok {
		return fmt.Errorf("%w: %s is not waiting", model.ErrNotFound, identity)
	}
	delete(h.waiting, identity)
	h.touchLocked()
	h.broadcastRosterLocked("")
	log.Printf("[Hub %s] Removed %s from waiting room", h.ID, identity)
	return nil
}

// Leave removes the identity entirely — no grace window.
func (h *Hub) Leave(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(identity, "left")
}

// Disconnect marks the participant disconnected and starts the reconnect
// grace timer; the slot (including room assignment) survives until it fires.
// Waiting entrants are simply dropped.
func (h *Hub) Disconnect(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.waiting[identity]; ok {
		delete(h.waiting, identity)
		h.touchLocked()
		h.broadcastRosterLocked("")
		return
	}

	p, ok := h.participants[identity]
	if !ok {
		return
	}
	p.Connected = false
	h.touchLocked()

	if h.deps.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		room := model.MainRoom
		if p.Room != 0 {
			room = fmt.Sprintf("breakout-%d", p.Room)
		}
		if err := h.deps.Presence.MarkDisconnected(ctx, h.ID, identity, room); err != nil {
			log.Printf("[Hub %s] Failed to mark grace for %s: %v", h.ID, identity, err)
		}
	}

	if p.graceTimer != nil {
		p.graceTimer.Stop()
	}
	p.graceTimer = time.AfterFunc(h.deps.Cfg.ReconnectGrace, func() {
		h.expireGrace(identity)
	})

	h.broadcastRosterLocked("")
	log.Printf("[Hub %s] %s disconnected (grace %s)", h.ID, identity, h.deps.Cfg.ReconnectGrace)
}

func (h *Hub) expireGrace(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.participants[identity]
	if !ok || p.Connected {
		return
	}
	if h.deps.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.deps.Presence.ClearDisconnected(ctx, h.ID, identity); err != nil {
			log.Printf("[Hub %s] Failed to clear grace marker for %s: %v", h.ID, identity, err)
		}
	}
	h.removeLocked(identity, "grace window expired")
}

func (h *Hub) removeLocked(identity, reason string) {
	p, ok := h.participants[identity]
	if !ok {
		if _, waiting := h.waiting[identity]; waiting {
			delete(h.waiting, identity)
			h.broadcastRosterLocked("")
		}
		return
	}
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if p.Room != 0 {
		h.rooms.Leave(p.Room, identity)
	}
	delete(h.participants, identity)
	h.touchLocked()
	h.broadcastRosterLocked("")
	log.Printf("[Hub %s] %s removed (%s)", h.ID, identity, reason)
}

// Participants returns the membership snapshot for Main (selector 0) or an
// open breakout room.
func (h *Hub) Participants(selector int) ([]ParticipantSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if selector != 0 {
		if _, ok := h.rooms.Get(selector); !ok {
			return nil, fmt.Errorf("%w: breakout room #%d", model.ErrNotFound, selector)
		}
	}
	return h.participantsLocked(selector), nil
}

func (h *Hub) participantsLocked(selector int) []ParticipantSnapshot {
	out := make([]ParticipantSnapshot, 0, len(h.participants))
	for _, p := range h.participants {
		if p.Room != selector {
			continue
		}
		out = append(out, p.snapshot())
	}
	sortParticipants(out)
	return out
}

func (h *Hub) waitingLocked() []WaitingSnapshot {
	out := make([]WaitingSnapshot, 0, len(h.waiting))
	for _, w := range h.waiting {
		out = append(out, w.snapshot())
	}
	sortWaiting(out)
	return out
}

func (h *Hub) broadcastRosterLocked(exclude string) {
	h.deps.Notifier.Broadcast(h.ID, EventParticipantsUpdated, map[string]any{
		"sessionId":    h.ID,
		"participants": h.participantsLocked(0),
		"waitingRoom":  h.waitingLocked(),
		"breakouts":    h.rooms.ListActive(),
	}, exclude)
}

// SetPermissions toggles a participant's publish permissions. Moderator only.
func (h *Hub) SetPermissions(actor, identity string, audio, video, screenshare *bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return err
	}
	p, ok := h.participants[identity]
	if !ok {
		return fmt.Errorf("%w: participant %s", model.ErrNotFound, identity)
	}
	if audio != nil {
		p.CanPublishAudio = *audio
	}
	if video != nil {
		p.CanPublishVideo = *video
	}
	if screenshare != nil {
		p.CanScreenshare = *screenshare
	}
	h.touchLocked()

	h.deps.Notifier.Broadcast(h.ID, EventPermissionsChanged, p.snapshot(), "")
	return nil
}

func (h *Hub) requireModeratorLocked(actor string) error {
	p, ok := h.participants[actor]
	if !ok || !p.Role.Privileged() {
		return model.ErrPermission
	}
	return nil
}

func (h *Hub) requireParticipantLocked(identity string) (*Participant, error) {
	p, ok := h.participants[identity]
	if !ok {
		return nil, fmt.Errorf("%w: participant %s", model.ErrNotFound, identity)
	}
	return p, nil
}

// =============================================================================
// Whiteboard
// =============================================================================

// WhiteboardJoin returns the reconstruction state for a late joiner.
func (h *Hub) WhiteboardJoin(identity string) (*whiteboard.JoinState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.requireParticipantLocked(identity); err != nil {
		return nil, err
	}
	return h.board.Join(), nil
}

// AddStroke assigns the next seq and broadcasts the stroke to everyone but
// the author, who reconciles via the ack instead.
func (h *Hub) AddStroke(ctx context.Context, author string, in whiteboard.Input) (*whiteboard.Stroke, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(author)
	if err != nil {
		return nil, err
	}
	h.touchLocked()

	stroke, err := h.board.AddStroke(ctx, author, p.Role, in)
	if err != nil {
		return nil, err
	}

	h.deps.Notifier.Broadcast(h.ID, EventStrokeAdded, map[string]any{
		"sessionId": h.ID,
		"stroke":    stroke,
	}, author)
	return stroke, nil
}

// RevokeStrokes revokes the given seqs. Idempotent: seqs already revoked are
// skipped and produce no broadcast.
func (h *Hub) RevokeStrokes(ctx context.Context, author string, seqs []int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(author)
	if err != nil {
		return err
	}
	if h.board.Locked() && !p.Role.Privileged() {
		return model.ErrLocked
	}
	h.touchLocked()

	applied := h.board.Revoke(ctx, seqs)
	if len(applied) > 0 {
		h.deps.Notifier.Broadcast(h.ID, EventStrokesRevoked, map[string]any{
			"sessionId": h.ID,
			"seqs":      applied,
		}, "")
	}
	return nil
}

// UndoStroke revokes the newest visible stroke.
func (h *Hub) UndoStroke(ctx context.Context, author string) (int64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(author)
	if err != nil {
		return 0, false, err
	}
	if h.board.Locked() && !p.Role.Privileged() {
		return 0, false, model.ErrLocked
	}
	h.touchLocked()

	seq, ok := h.board.Undo(ctx)
	if ok {
		h.deps.Notifier.Broadcast(h.ID, EventStrokesRevoked, map[string]any{
			"sessionId": h.ID,
			"seqs":      []int64{seq},
		}, "")
	}
	return seq, ok, nil
}

// RedoStroke re-adds the most recently undone stroke under a fresh seq.
func (h *Hub) RedoStroke(ctx context.Context, author string) (*whiteboard.Stroke, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(author)
	if err != nil {
		return nil, false, err
	}
	h.touchLocked()

	stroke, ok, err := h.board.Redo(ctx, author, p.Role)
	if err != nil || !ok {
		return nil, ok, err
	}

	// Redo converges through the same "new stroke" path as drawing, but the
	// initiator needs it too — no self-exclusion here.
	h.deps.Notifier.Broadcast(h.ID, EventStrokeAdded, map[string]any{
		"sessionId": h.ID,
		"stroke":    stroke,
	}, "")
	return stroke, true, nil
}

// ClearBoard conceptually revokes the whole log. Moderator only.
func (h *Hub) ClearBoard(ctx context.Context, actor string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(actor)
	if err != nil {
		return err
	}
	h.touchLocked()

	if err := h.board.Clear(ctx, p.Role); err != nil {
		return err
	}
	h.deps.Notifier.Broadcast(h.ID, EventBoardCleared, map[string]any{
		"sessionId": h.ID,
	}, "")
	return nil
}

// SetBoardLock toggles the moderator lock. Moderator only.
func (h *Hub) SetBoardLock(actor string, locked bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.requireParticipantLocked(actor)
	if err != nil {
		return err
	}
	h.touchLocked()

	if err := h.board.SetLock(p.Role, locked); err != nil {
		return err
	}
	h.deps.Notifier.Broadcast(h.ID, EventLockChanged, map[string]any{
		"sessionId": h.ID,
		"locked":    locked,
	}, "")
	return nil
}

// Board exposes the coordinator for read-only REST snapshots.
func (h *Hub) Board() *whiteboard.Board {
	return h.board
}

// =============================================================================
// Breakout rooms
// =============================================================================

// CreateBreakout allocates a new breakout room. Moderator only; atomic
// create-or-fail against the media service.
func (h *Hub) CreateBreakout(ctx context.Context, actor string) (*breakout.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return nil, err
	}
	h.touchLocked()

	room, err := h.rooms.Create(ctx)
	if err != nil {
		return nil, err
	}

	snap := &breakout.Snapshot{
		Index:    room.Index,
		RoomName: room.RoomName,
		Members:  []string{},
		ClosesAt: room.ClosesAt,
	}
	h.deps.Notifier.Broadcast(h.ID, EventBreakoutCreated, snap, "")
	return snap, nil
}

// ExtendBreakout pushes out a room's auto-close deadline. Moderator only.
func (h *Hub) ExtendBreakout(actor string, index, addMinutes int) (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return time.Time{}, err
	}
	h.touchLocked()

	closesAt, err := h.rooms.Extend(index, addMinutes)
	if err != nil {
		return time.Time{}, err
	}
	h.deps.Notifier.Broadcast(h.ID, EventBreakoutExtended, map[string]any{
		"sessionId": h.ID,
		"index":     index,
		"closesAt":  closesAt,
	}, "")
	return closesAt, nil
}

// CloseBreakout closes a room and migrates its members back to Main.
// Moderator only; idempotent (a second close acks success and does nothing).
func (h *Hub) CloseBreakout(ctx context.Context, actor string, index int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return nil, err
	}
	return h.closeBreakoutLocked(ctx, index)
}

// closeBreakout is the auto-close entry point (no actor).
func (h *Hub) closeBreakout(ctx context.Context, index int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeBreakoutLocked(ctx, index)
}

func (h *Hub) closeBreakoutLocked(ctx context.Context, index int) ([]string, error) {
	h.touchLocked()

	members, err := h.rooms.Close(ctx, index)
	if err != nil {
		return nil, err
	}

	// Every displaced member follows the same invariant-checked path as an
	// explicit move back to Main.
	for _, identity := range members {
		if p, ok := h.participants[identity]; ok && p.Room == index {
			p.Room = 0
			h.deps.Notifier.Send(h.ID, []string{identity}, EventParticipantMoved, map[string]any{
				"sessionId":  h.ID,
				"identity":   identity,
				"room":       0,
				"mediaToken": h.mediaTokenFor(p),
			})
		}
	}

	h.deps.Notifier.Broadcast(h.ID, EventBreakoutClosed, map[string]any{
		"sessionId": h.ID,
		"index":     index,
		"members":   members,
	}, "")
	h.broadcastRosterLocked("")
	return members, nil
}

// MoveTo moves a participant from their current room into an open breakout.
// Moderators may move anyone; everyone else only themselves.
func (h *Hub) MoveTo(actor, identity string, toIndex int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if actor != identity {
		if err := h.requireModeratorLocked(actor); err != nil {
			return err
		}
	}
	p, err := h.requireParticipantLocked(identity)
	if err != nil {
		return err
	}
	if p.Room == toIndex {
		return nil // already there
	}
	h.touchLocked()

	if err := h.rooms.Join(toIndex, identity); err != nil {
		return err
	}
	if p.Room != 0 {
		h.rooms.Leave(p.Room, identity)
	}
	p.Room = toIndex

	h.notifyMoveLocked(p)
	log.Printf("[Hub %s] %s moved to breakout #%d", h.ID, identity, toIndex)
	return nil
}

// MoveBack returns a participant from a breakout room to Main.
func (h *Hub) MoveBack(actor, identity string, fromIndex int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if actor != identity {
		if err := h.requireModeratorLocked(actor); err != nil {
			return err
		}
	}
	p, err := h.requireParticipantLocked(identity)
	if err != nil {
		return err
	}
	if p.Room == 0 {
		return nil // already in Main
	}
	if p.Room != fromIndex {
		return fmt.Errorf("%w: %s is not in breakout #%d", model.ErrConflict, identity, fromIndex)
	}
	h.touchLocked()

	h.rooms.Leave(fromIndex, identity)
	p.Room = 0

	h.notifyMoveLocked(p)
	log.Printf("[Hub %s] %s moved back to Main", h.ID, identity)
	return nil
}

func (h *Hub) notifyMoveLocked(p *Participant) {
	h.deps.Notifier.Send(h.ID, []string{p.Identity}, EventParticipantMoved, map[string]any{
		"sessionId":  h.ID,
		"identity":   p.Identity,
		"room":       p.Room,
		"mediaToken": h.mediaTokenFor(p),
	})
	h.broadcastRosterLocked("")
}

// ListBreakouts returns active rooms, or the full history when all is set.
func (h *Hub) ListBreakouts(all bool) []breakout.Snapshot {
	if all {
		return h.rooms.ListAll()
	}
	return h.rooms.ListActive()
}

// StartBreakoutStream starts an HLS stream on an open breakout room.
func (h *Hub) StartBreakoutStream(ctx context.Context, actor string, index int) (*media.StreamInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return nil, err
	}
	h.touchLocked()
	return h.rooms.StartStream(ctx, index)
}

// =============================================================================
// Main stream
// =============================================================================

// StartStream starts the Main room HLS stream; stream_* chat scopes open up
// while it runs. Moderator only.
func (h *Hub) StartStream(ctx context.Context, actor string) (*media.StreamInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return nil, err
	}
	if h.mainStream != nil {
		return h.mainStream, nil
	}
	h.touchLocked()

	stream, err := h.deps.Media.StartStream(ctx, h.mainRoomName())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	h.mainStream = stream

	h.deps.Notifier.Broadcast(h.ID, EventStreamStarted, map[string]any{
		"sessionId":   h.ID,
		"playbackUrl": stream.PlaybackURL,
	}, "")
	return stream, nil
}

// StopStream stops the Main room stream. Moderator only; stopping a stopped
// stream is a no-op.
func (h *Hub) StopStream(ctx context.Context, actor string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireModeratorLocked(actor); err != nil {
		return err
	}
	if h.mainStream == nil {
		return nil
	}
	h.touchLocked()

	if err := h.deps.Media.StopStream(ctx, h.mainStream.EgressID); err != nil {
		log.Printf("[Hub %s] Failed to stop stream: %v", h.ID, err)
	}
	h.mainStream = nil

	h.deps.Notifier.Broadcast(h.ID, EventStreamStopped, map[string]any{
		"sessionId": h.ID,
	}, "")
	return nil
}

// =============================================================================
// Chat
// =============================================================================

// SendChat routes a scoped message; eligibility failures persist nothing and
// surface in the sender's ack only.
func (h *Hub) SendChat(ctx context.Context, from string, scope model.ChatScope, to, content string) (*chat.Delivery, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == model.SessionEnded {
		return nil, model.ErrSessionEnded
	}
	h.touchLocked()

	delivery, err := h.chat.Send(ctx, rosterView{h}, from, scope, to, content)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"sessionId": h.ID,
		"message":   delivery.Message,
	}
	h.deps.Notifier.Send(h.ID, delivery.Recipients, EventChatMessage, payload)
	return delivery, nil
}

// ChatHistory returns the requester-visible, time-ordered scope history.
func (h *Hub) ChatHistory(ctx context.Context, requester string, scope model.ChatScope, with string) ([]model.ChatMessageRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chat.History(ctx, rosterView{h}, requester, scope, with)
}

// =============================================================================
// Lifecycle
// =============================================================================

// End terminates the session: breakouts close, the stream stops, grace
// timers die, and subscribers get a final session:ended.
func (h *Hub) End(ctx context.Context, actor string) error {
	h.mu.Lock()

	if actor != "" {
		if err := h.requireModeratorLocked(actor); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	if h.state == model.SessionEnded {
		h.mu.Unlock()
		return nil
	}
	h.state = model.SessionEnded
	for _, p := range h.participants {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
	}
	stream := h.mainStream
	h.mainStream = nil
	h.mu.Unlock()

	if stream != nil {
		if err := h.deps.Media.StopStream(ctx, stream.EgressID); err != nil {
			log.Printf("[Hub %s] Failed to stop stream on end: %v", h.ID, err)
		}
	}
	h.rooms.Shutdown(ctx)

	h.deps.Notifier.Broadcast(h.ID, EventSessionEnded, map[string]any{
		"sessionId": h.ID,
	}, "")
	log.Printf("[Hub %s] Ended", h.ID)
	return nil
}

// State 현재 라이프사이클 상태
func (h *Hub) State() model.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Empty reports whether nobody is connected or waiting.
func (h *Hub) Empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.waiting) > 0 {
		return false
	}
	for _, p := range h.participants {
		if p.Connected {
			return false
		}
	}
	return true
}

// LastActive 마지막 활동 시각
func (h *Hub) LastActive() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActive
}
