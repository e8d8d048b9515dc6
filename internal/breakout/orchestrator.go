package breakout

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"livesession-backend/internal/media"
	"livesession-backend/internal/model"
	"livesession-backend/internal/store"
)

// Room 브레이크아웃 룸
//
// State machine: Created → Active → Active(extended)* → Closed. Closed is
// terminal; a reopened discussion gets a fresh room with a fresh index.
type Room struct {
	Index    int
	RoomName string // external media room handle
	Members  map[string]bool
	ClosesAt *time.Time
	ClosedAt *time.Time
	Stream   *media.StreamInfo

	timer *time.Timer
}

// Snapshot 룸 목록 응답용 뷰
type Snapshot struct {
	Index       int               `json:"index"`
	RoomName    string            `json:"roomName"`
	MemberCount int               `json:"memberCount"`
	Members     []string          `json:"members"`
	ClosesAt    *time.Time        `json:"closesAt,omitempty"`
	ClosedAt    *time.Time        `json:"closedAt,omitempty"`
	Stream      *media.StreamInfo `json:"stream,omitempty"`
}

// Rooms 세션별 브레이크아웃 레지스트리
//
// Indices are monotonic and never reused within a session. The session hub
// serializes all mutating calls; the internal mutex only protects against
// the auto-close timer goroutine racing a concurrent snapshot read.
type Rooms struct {
	sessionID string

	mu        sync.Mutex
	nextIndex int
	rooms     map[int]*Room

	media      media.Service
	store      store.Breakouts
	defaultDur time.Duration
	// onExpire re-enters the hub so auto-close runs through the same
	// serialized path as a manual close.
	onExpire func(index int)
}

// NewRooms 레지스트리 생성
func NewRooms(sessionID string, svc media.Service, st store.Breakouts, defaultDur time.Duration) *Rooms {
	return &Rooms{
		sessionID:  sessionID,
		nextIndex:  1,
		rooms:      make(map[int]*Room),
		media:      svc,
		store:      st,
		defaultDur: defaultDur,
	}
}

// SetExpiryHandler 자동 종료 콜백 등록 (허브가 연결)
func (r *Rooms) SetExpiryHandler(fn func(index int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

func (r *Rooms) roomName(index int) string {
	return fmt.Sprintf("%s-breakout-%d", r.sessionID, index)
}

// Create allocates the next index and requests a media room. The external
// call either succeeds and the room is registered Active, or fails and no
// state changes at all.
func (r *Rooms) Create(ctx context.Context) (*Room, error) {
	r.mu.Lock()
	candidate := r.nextIndex
	r.mu.Unlock()

	name := r.roomName(candidate)
	if err := r.media.CreateRoom(ctx, name); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}

	room := &Room{
		Index:    candidate,
		RoomName: name,
		Members:  make(map[string]bool),
	}

	r.mu.Lock()
	r.nextIndex++
	r.rooms[candidate] = room
	if r.defaultDur > 0 {
		closesAt := time.Now().Add(r.defaultDur)
		room.ClosesAt = &closesAt
		r.scheduleLocked(room)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Create(ctx, &model.BreakoutRecord{
			SessionID: r.sessionID,
			Index:     room.Index,
			RoomName:  room.RoomName,
		}); err != nil {
			log.Printf("[Breakout %s] Failed to record room #%d: %v", r.sessionID, room.Index, err)
		}
	}

	log.Printf("[Breakout %s] Created room #%d (%s)", r.sessionID, room.Index, room.RoomName)
	return room, nil
}

// scheduleLocked (re)arms the auto-close timer. Caller holds the lock.
func (r *Rooms) scheduleLocked(room *Room) {
	if room.timer != nil {
		room.timer.Stop()
		room.timer = nil
	}
	if room.ClosesAt == nil || room.ClosedAt != nil {
		return
	}
	index := room.Index
	room.timer = time.AfterFunc(time.Until(*room.ClosesAt), func() {
		r.mu.Lock()
		fn := r.onExpire
		r.mu.Unlock()
		if fn != nil {
			fn(index)
		}
	})
}

// Extend pushes the close deadline of an Active room out by addMinutes and
// reschedules its timer. A room without a deadline gets one from now.
func (r *Rooms) Extend(index int, addMinutes int) (time.Time, error) {
	if addMinutes <= 0 {
		return time.Time{}, fmt.Errorf("%w: addMinutes must be positive", model.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[index]
	if !ok || room.ClosedAt != nil {
		return time.Time{}, fmt.Errorf("%w: breakout room #%d", model.ErrNotFound, index)
	}

	base := time.Now()
	if room.ClosesAt != nil && room.ClosesAt.After(base) {
		base = *room.ClosesAt
	}
	closesAt := base.Add(time.Duration(addMinutes) * time.Minute)
	room.ClosesAt = &closesAt
	r.scheduleLocked(room)

	log.Printf("[Breakout %s] Extended room #%d until %s", r.sessionID, index, closesAt.Format(time.RFC3339))
	return closesAt, nil
}

// Close transitions the room to Closed, cancels its timer, releases the
// media room, and returns the members the hub must migrate back to Main.
// Closing an already-closed room reports ErrAlreadyClosed, which callers
// surface as a successful no-op.
func (r *Rooms) Close(ctx context.Context, index int) ([]string, error) {
	r.mu.Lock()
	room, ok := r.rooms[index]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: breakout room #%d", model.ErrNotFound, index)
	}
	if room.ClosedAt != nil {
		r.mu.Unlock()
		return nil, model.ErrAlreadyClosed
	}

	now := time.Now()
	room.ClosedAt = &now
	if room.timer != nil {
		room.timer.Stop()
		room.timer = nil
	}
	members := make([]string, 0, len(room.Members))
	for identity := range room.Members {
		members = append(members, identity)
	}
	room.Members = make(map[string]bool)
	stream := room.Stream
	room.Stream = nil
	r.mu.Unlock()

	sort.Strings(members)

	// The room is already Closed in our registry; media release failures are
	// logged, not rolled back — the handle is gone either way.
	if stream != nil {
		if err := r.media.StopStream(ctx, stream.EgressID); err != nil {
			log.Printf("[Breakout %s] Failed to stop stream for room #%d: %v", r.sessionID, index, err)
		}
	}
	if err := r.media.CloseRoom(ctx, room.RoomName); err != nil {
		log.Printf("[Breakout %s] Failed to release media room %s: %v", r.sessionID, room.RoomName, err)
	}

	if r.store != nil {
		if err := r.store.Close(ctx, r.sessionID, index, now); err != nil {
			log.Printf("[Breakout %s] Failed to record close of room #%d: %v", r.sessionID, index, err)
		}
	}

	log.Printf("[Breakout %s] Closed room #%d, migrating %d members", r.sessionID, index, len(members))
	return members, nil
}

// Join adds an identity to an open room's member set.
func (r *Rooms) Join(index int, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[index]
	if !ok || room.ClosedAt != nil {
		return fmt.Errorf("%w: breakout room #%d", model.ErrNotFound, index)
	}
	room.Members[identity] = true
	return nil
}

// Leave removes an identity from a room's member set. Unknown membership is
// a no-op so disconnect cleanup never fails.
func (r *Rooms) Leave(index int, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[index]; ok {
		delete(room.Members, identity)
	}
}

// StartStream starts an HLS stream for an open room.
func (r *Rooms) StartStream(ctx context.Context, index int) (*media.StreamInfo, error) {
	r.mu.Lock()
	room, ok := r.rooms[index]
	if !ok || room.ClosedAt != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: breakout room #%d", model.ErrNotFound, index)
	}
	if room.Stream != nil {
		stream := room.Stream
		r.mu.Unlock()
		return stream, nil
	}
	name := room.RoomName
	r.mu.Unlock()

	stream, err := r.media.StartStream(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}

	r.mu.Lock()
	room.Stream = stream
	r.mu.Unlock()
	return stream, nil
}

// Get returns an open room by index.
func (r *Rooms) Get(index int) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[index]
	if !ok || room.ClosedAt != nil {
		return nil, false
	}
	return room, true
}

// ListActive 활성 룸 목록 (index 순)
func (r *Rooms) ListActive() []Snapshot {
	return r.list(false)
}

// ListAll 종료 포함 전체 목록 (리포팅용, index 순)
func (r *Rooms) ListAll() []Snapshot {
	return r.list(true)
}

func (r *Rooms) list(includeClosed bool) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.ClosedAt != nil && !includeClosed {
			continue
		}
		members := make([]string, 0, len(room.Members))
		for identity := range room.Members {
			members = append(members, identity)
		}
		sort.Strings(members)
		out = append(out, Snapshot{
			Index:       room.Index,
			RoomName:    room.RoomName,
			MemberCount: len(members),
			Members:     members,
			ClosesAt:    room.ClosesAt,
			ClosedAt:    room.ClosedAt,
			Stream:      room.Stream,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Shutdown closes every open room on session end. Timers are cancelled
// first so no auto-close fires against a session being torn down.
func (r *Rooms) Shutdown(ctx context.Context) {
	r.mu.Lock()
	open := make([]int, 0, len(r.rooms))
	for index, room := range r.rooms {
		if room.timer != nil {
			room.timer.Stop()
			room.timer = nil
		}
		if room.ClosedAt == nil {
			open = append(open, index)
		}
	}
	r.mu.Unlock()

	for _, index := range open {
		if _, err := r.Close(ctx, index); err != nil {
			log.Printf("[Breakout %s] Shutdown close of room #%d failed: %v", r.sessionID, index, err)
		}
	}
}
