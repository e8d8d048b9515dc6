package whiteboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"livesession-backend/internal/model"
	"livesession-backend/internal/store"
)

// Stroke 화이트보드 획 (서버 권위 상태)
//
// Seq is the authoritative identity of the stroke. ClientID is whatever
// tentative id the submitting client used; it is echoed back so the client
// can remap its optimistic local stroke onto the assigned seq.
type Stroke struct {
	Seq       int64            `json:"seq"`
	ClientID  string           `json:"clientId,omitempty"`
	Author    string           `json:"author"`
	Tool      model.StrokeTool `json:"tool"`
	Payload   json.RawMessage  `json:"payload"`
	Color     string           `json:"color,omitempty"`
	Size      int              `json:"size,omitempty"`
	Revoked   bool             `json:"-"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Input 획 제출 페이로드 (seq 미할당)
type Input struct {
	ClientID string
	Tool     model.StrokeTool
	Payload  json.RawMessage
	Color    string
	Size     int
}

// JoinState is what a late joiner needs to reconstruct the visible board:
// the counter value it should expect next plus a bounded non-revoked tail.
type JoinState struct {
	NextSeq int64     `json:"nextSeq"`
	Recent  []*Stroke `json:"recentStrokes"`
	Locked  bool      `json:"locked"`
}

// Board 세션별 권위 획 로그
//
// Strokes are never deleted, only flagged revoked, so replay to late joiners
// and repeated revocation are both idempotent. The session hub serializes
// mutations, but the board keeps its own lock so REST snapshot reads can run
// concurrently with the hub's writer.
type Board struct {
	sessionID string

	mu      sync.RWMutex
	nextSeq int64
	strokes []*Stroke // index == seq-1
	// clearMark is the highest seq conceptually revoked by the last clear;
	// the recent window never reaches behind it.
	clearMark int64
	// undone is the redo stack: seqs revoked by Undo, newest last.
	// Any fresh add invalidates it.
	undone []int64
	locked bool

	window int
	store  store.Strokes
}

// NewBoard 보드 생성
func NewBoard(sessionID string, window int, st store.Strokes) *Board {
	if window <= 0 {
		window = 500
	}
	return &Board{
		sessionID: sessionID,
		nextSeq:   1,
		window:    window,
		store:     st,
	}
}

// Join 접속 시 보드 상태 반환
func (b *Board) Join() *JoinState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &JoinState{
		NextSeq: b.nextSeq,
		Recent:  b.recentLocked(),
		Locked:  b.locked,
	}
}

// recentLocked returns the bounded non-revoked tail. Caller holds the lock.
func (b *Board) recentLocked() []*Stroke {
	recent := make([]*Stroke, 0, b.window)
	for i := len(b.strokes) - 1; i >= 0 && len(recent) < b.window; i-- {
		s := b.strokes[i]
		if s.Seq <= b.clearMark {
			break
		}
		if s.Revoked {
			continue
		}
		recent = append(recent, s)
	}
	// reverse into seq order
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// AddStroke assigns the next sequence number atomically and appends.
// Rejected while locked unless the author holds a privileged role.
func (b *Board) AddStroke(ctx context.Context, author string, role model.Role, in Input) (*Stroke, error) {
	if !in.Tool.Valid() {
		return nil, fmt.Errorf("%w: unknown tool %q", model.ErrValidation, in.Tool)
	}
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty stroke payload", model.ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locked && !role.Privileged() {
		return nil, model.ErrLocked
	}

	stroke := &Stroke{
		Seq:       b.nextSeq,
		ClientID:  in.ClientID,
		Author:    author,
		Tool:      in.Tool,
		Payload:   in.Payload,
		Color:     in.Color,
		Size:      in.Size,
		CreatedAt: time.Now(),
	}
	b.nextSeq++
	b.strokes = append(b.strokes, stroke)
	// A fresh stroke invalidates the redo stack.
	b.undone = nil

	if b.store != nil {
		rec := &model.StrokeRecord{
			SessionID: b.sessionID,
			Seq:       stroke.Seq,
			ClientID:  stroke.ClientID,
			Author:    stroke.Author,
			Tool:      stroke.Tool,
			Payload:   string(stroke.Payload),
			Color:     stroke.Color,
			Size:      stroke.Size,
		}
		if err := b.store.Append(ctx, rec); err != nil {
			log.Printf("[Whiteboard %s] Failed to persist stroke %d: %v", b.sessionID, stroke.Seq, err)
		}
	}

	return stroke, nil
}

// Revoke marks the given seqs revoked. Unknown and already-revoked seqs are
// skipped, so retried undo requests are safe. Returns the seqs that actually
// changed state; an empty result means nothing to broadcast.
func (b *Board) Revoke(ctx context.Context, seqs []int64) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.revokeLocked(ctx, seqs)
}

func (b *Board) revokeLocked(ctx context.Context, seqs []int64) []int64 {
	applied := make([]int64, 0, len(seqs))
	for _, seq := range seqs {
		if seq < 1 || seq >= b.nextSeq {
			continue
		}
		s := b.strokes[seq-1]
		if s.Revoked {
			continue
		}
		s.Revoked = true
		applied = append(applied, seq)
	}

	if len(applied) > 0 && b.store != nil {
		if err := b.store.Revoke(ctx, b.sessionID, applied); err != nil {
			log.Printf("[Whiteboard %s] Failed to persist revoke: %v", b.sessionID, err)
		}
	}

	return applied
}

// Undo revokes the most recent non-revoked stroke and pushes it on the redo
// stack. Returns the revoked seq, or ok=false when there is nothing to undo.
func (b *Board) Undo(ctx context.Context) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.strokes) - 1; i >= 0; i-- {
		s := b.strokes[i]
		if s.Seq <= b.clearMark {
			break
		}
		if s.Revoked {
			continue
		}
		b.revokeLocked(ctx, []int64{s.Seq})
		b.undone = append(b.undone, s.Seq)
		return s.Seq, true
	}
	return 0, false
}

// Redo re-adds the most recently undone stroke as a brand new stroke with a
// new seq — the original stays permanently revoked, so the log remains
// monotone and every client converges through the ordinary add path.
func (b *Board) Redo(ctx context.Context, author string, role model.Role) (*Stroke, bool, error) {
	b.mu.Lock()
	if len(b.undone) == 0 {
		b.mu.Unlock()
		return nil, false, nil
	}
	seq := b.undone[len(b.undone)-1]
	remaining := append([]int64(nil), b.undone[:len(b.undone)-1]...)
	src := b.strokes[seq-1]
	in := Input{
		ClientID: src.ClientID,
		Tool:     src.Tool,
		Payload:  src.Payload,
		Color:    src.Color,
		Size:     src.Size,
	}
	b.mu.Unlock()

	stroke, err := b.AddStroke(ctx, author, role, in)
	if err != nil {
		return nil, false, err
	}
	// AddStroke wiped the redo stack; restore the rest so a redo chain
	// keeps working.
	b.mu.Lock()
	b.undone = remaining
	b.mu.Unlock()
	return stroke, true, nil
}

// Clear conceptually revokes the whole log: the recent window resets but
// full history is retained for any downstream export. Moderator/admin only.
func (b *Board) Clear(ctx context.Context, role model.Role) error {
	if !role.Privileged() {
		return model.ErrPermission
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.strokes {
		s.Revoked = true
	}
	b.clearMark = b.nextSeq - 1
	b.undone = nil

	if b.store != nil {
		if err := b.store.RevokeAll(ctx, b.sessionID); err != nil {
			log.Printf("[Whiteboard %s] Failed to persist clear: %v", b.sessionID, err)
		}
	}

	log.Printf("[Whiteboard %s] Cleared (history retained through seq %d)", b.sessionID, b.clearMark)
	return nil
}

// SetLock toggles the moderator lock. Moderator/admin only.
func (b *Board) SetLock(role model.Role, locked bool) error {
	if !role.Privileged() {
		return model.ErrPermission
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.locked = locked
	return nil
}

// Locked 잠금 상태 조회
func (b *Board) Locked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locked
}

// NextSeq 다음 할당 예정 seq 조회
func (b *Board) NextSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
