package breakout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livesession-backend/internal/media"
	"livesession-backend/internal/model"
)

// fakeMedia 테스트용 미디어 서비스
type fakeMedia struct {
	mu          sync.Mutex
	created     []string
	closed      []string
	failCreate  bool
	streamCalls int
}

func (f *fakeMedia) CreateRoom(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("media down")
	}
	f.created = append(f.created, name)
	return nil
}

func (f *fakeMedia) CloseRoom(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, name)
	return nil
}

func (f *fakeMedia) ListParticipants(ctx context.Context, name string) ([]media.ParticipantInfo, error) {
	return nil, nil
}

func (f *fakeMedia) StartStream(ctx context.Context, room string) (*media.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++
	return &media.StreamInfo{EgressID: "eg-" + room, PlaybackURL: "https://hls/" + room}, nil
}

func (f *fakeMedia) StopStream(ctx context.Context, egressID string) error { return nil }

func (f *fakeMedia) JoinToken(room, identity, displayName string) (string, error) {
	return "token-" + room + "-" + identity, nil
}

func TestCreateAssignsMonotonicIndices(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r1, err := rooms.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r2, err := rooms.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r1.Index != 1 || r2.Index != 2 {
		t.Fatalf("expected indices 1, 2; got %d, %d", r1.Index, r2.Index)
	}
	if r1.RoomName != "s1-breakout-1" {
		t.Fatalf("unexpected room name %q", r1.RoomName)
	}
}

func TestCreateFailureLeavesNoState(t *testing.T) {
	svc := &fakeMedia{failCreate: true}
	rooms := NewRooms("s1", svc, nil, 0)

	if _, err := rooms.Create(context.Background()); model.ErrorCode(err) != "media_unavailable" {
		t.Fatalf("expected media_unavailable, got %v", err)
	}
	if len(rooms.ListActive()) != 0 {
		t.Fatal("failed create must register nothing")
	}

	// The failed attempt must not burn the index.
	svc.failCreate = false
	r, err := rooms.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Index != 1 {
		t.Fatalf("expected index 1 after failed attempt, got %d", r.Index)
	}
}

func TestIndicesNeverReused(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r1, _ := rooms.Create(context.Background())
	if _, err := rooms.Close(context.Background(), r1.Index); err != nil {
		t.Fatal(err)
	}

	r2, _ := rooms.Create(context.Background())
	if r2.Index != 2 {
		t.Fatalf("closed index must not be reused, got %d", r2.Index)
	}
}

func TestCloseReturnsSortedMembersAndReleasesMedia(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r, _ := rooms.Create(context.Background())
	rooms.Join(r.Index, "carol")
	rooms.Join(r.Index, "alice")
	rooms.Join(r.Index, "bob")

	members, err := rooms.Close(context.Background(), r.Index)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 || members[0] != "alice" || members[2] != "carol" {
		t.Fatalf("expected sorted members, got %v", members)
	}
	if len(svc.closed) != 1 || svc.closed[0] != "s1-breakout-1" {
		t.Fatalf("media room not released: %v", svc.closed)
	}
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r, _ := rooms.Create(context.Background())
	if _, err := rooms.Close(context.Background(), r.Index); err != nil {
		t.Fatal(err)
	}
	if _, err := rooms.Close(context.Background(), r.Index); !errors.Is(err, model.ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if err := rooms.Join(r.Index, "alice"); model.ErrorCode(err) != "not_found" {
		t.Fatalf("closed room must reject joins, got %v", err)
	}
	if _, err := rooms.Extend(r.Index, 5); model.ErrorCode(err) != "not_found" {
		t.Fatalf("closed room must reject extend, got %v", err)
	}
}

func TestCloseUnknownRoom(t *testing.T) {
	rooms := NewRooms("s1", &fakeMedia{}, nil, 0)
	if _, err := rooms.Close(context.Background(), 7); model.ErrorCode(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDefaultDurationArmsAutoClose(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 20*time.Millisecond)

	fired := make(chan int, 1)
	rooms.SetExpiryHandler(func(index int) { fired <- index })

	r, _ := rooms.Create(context.Background())
	if r.ClosesAt == nil {
		t.Fatal("expected an auto-close deadline")
	}

	select {
	case index := <-fired:
		if index != r.Index {
			t.Fatalf("expected expiry of room %d, got %d", r.Index, index)
		}
	case <-time.After(time.Second):
		t.Fatal("auto-close timer never fired")
	}
}

func TestExtendPushesDeadlineFromCurrentDeadline(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, time.Hour)

	r, _ := rooms.Create(context.Background())
	before := *r.ClosesAt

	closesAt, err := rooms.Extend(r.Index, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := closesAt.Sub(before)
	if got < 9*time.Minute || got > 11*time.Minute {
		t.Fatalf("expected ~10m extension past previous deadline, got %s", got)
	}
}

func TestExtendGivesDeadlineToOpenEndedRoom(t *testing.T) {
	rooms := NewRooms("s1", &fakeMedia{}, nil, 0)

	r, _ := rooms.Create(context.Background())
	if r.ClosesAt != nil {
		t.Fatal("expected no deadline without defaultDur")
	}

	closesAt, err := rooms.Extend(r.Index, 5)
	if err != nil {
		t.Fatal(err)
	}
	if until := time.Until(closesAt); until < 4*time.Minute || until > 6*time.Minute {
		t.Fatalf("expected ~5m from now, got %s", until)
	}
}

func TestListActiveSkipsClosed(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r1, _ := rooms.Create(context.Background())
	rooms.Create(context.Background())
	rooms.Close(context.Background(), r1.Index)

	active := rooms.ListActive()
	if len(active) != 1 || active[0].Index != 2 {
		t.Fatalf("expected only room 2 active, got %v", active)
	}
	all := rooms.ListAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 rooms in full history, got %d", len(all))
	}
	if all[0].ClosedAt == nil {
		t.Fatal("closed room must carry ClosedAt in history")
	}
}

func TestStartStreamOncePerRoom(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	r, _ := rooms.Create(context.Background())
	s1, err := rooms.StartStream(context.Background(), r.Index)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := rooms.StartStream(context.Background(), r.Index)
	if err != nil {
		t.Fatal(err)
	}
	if s1.EgressID != s2.EgressID {
		t.Fatal("second start must return the running stream")
	}
	if svc.streamCalls != 1 {
		t.Fatalf("expected a single egress start, got %d", svc.streamCalls)
	}
}

func TestShutdownClosesEverythingOpen(t *testing.T) {
	svc := &fakeMedia{}
	rooms := NewRooms("s1", svc, nil, 0)

	rooms.Create(context.Background())
	r2, _ := rooms.Create(context.Background())
	rooms.Close(context.Background(), r2.Index)

	rooms.Shutdown(context.Background())
	if len(rooms.ListActive()) != 0 {
		t.Fatal("expected no rooms open after shutdown")
	}
	if len(svc.closed) != 2 {
		t.Fatalf("expected both media rooms released, got %v", svc.closed)
	}
}
