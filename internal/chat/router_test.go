package chat

import (
	"context"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"livesession-backend/internal/model"
)

// fakeRoster 테스트용 세션 상태 뷰
type fakeRoster struct {
	admitted map[string]model.Role
	waiting  map[string]bool
	stream   bool
}

func (f *fakeRoster) RoleOf(identity string) (model.Role, bool) {
	role, ok := f.admitted[identity]
	return role, ok
}

func (f *fakeRoster) IsWaiting(identity string) bool { return f.waiting[identity] }

func (f *fakeRoster) Admitted() map[string]model.Role { return f.admitted }

func (f *fakeRoster) StreamActive() bool { return f.stream }

// fakeMessages 영속 메시지 기록
type fakeMessages struct {
	appended []*model.ChatMessageRecord
}

func (f *fakeMessages) Append(ctx context.Context, rec *model.ChatMessageRecord) error {
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeMessages) History(ctx context.Context, sessionID string, scope model.ChatScope, a, b string) ([]model.ChatMessageRecord, error) {
	out := []model.ChatMessageRecord{}
	for _, rec := range f.appended {
		if rec.Scope != scope {
			continue
		}
		if scope.Directed() {
			target := ""
			if rec.Target != nil {
				target = *rec.Target
			}
			if !(rec.Sender == a && target == b) && !(rec.Sender == b && target == a) {
				continue
			}
		}
		out = append(out, *rec)
	}
	return out, nil
}

func testRoster() *fakeRoster {
	return &fakeRoster{
		admitted: map[string]model.Role{
			"admin": model.RoleAdmin,
			"mod":   model.RoleModerator,
			"alice": model.RoleParticipant,
			"bob":   model.RoleParticipant,
			"obs":   model.RoleObserver,
		},
		waiting: map[string]bool{"walter": true},
	}
}

func TestGroupMessageReachesAdmittedOnly(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)

	d, err := r.Send(context.Background(), testRoster(), "alice", model.ScopeMeetingGroup, "", "hello all")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(d.Recipients)
	want := []string{"admin", "alice", "bob", "mod", "obs"}
	if len(d.Recipients) != len(want) {
		t.Fatalf("expected %v, got %v", want, d.Recipients)
	}
	for i, identity := range want {
		if d.Recipients[i] != identity {
			t.Fatalf("expected %v, got %v", want, d.Recipients)
		}
	}
	// walter is connected but still in the waiting room; he must not be
	// addressed, even implicitly via a session-wide broadcast.
	for _, identity := range d.Recipients {
		if identity == "walter" {
			t.Fatal("waiting entrant addressed by group message")
		}
	}
	if len(st.appended) != 1 || st.appended[0].Content != "hello all" {
		t.Fatalf("message not persisted: %v", st.appended)
	}
}

func TestGroupScopeRejectsTarget(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)
	_, err := r.Send(context.Background(), testRoster(), "alice", model.ScopeMeetingGroup, "bob", "hi")
	if model.ErrorCode(err) != "bad_request" {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestDirectedScopeRequiresDistinctTarget(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)
	roster := testRoster()

	if _, err := r.Send(context.Background(), roster, "alice", model.ScopeMeetingDM, "", "hi"); model.ErrorCode(err) != "bad_request" {
		t.Fatalf("missing target: expected bad_request, got %v", err)
	}
	if _, err := r.Send(context.Background(), roster, "alice", model.ScopeMeetingDM, "alice", "hi"); model.ErrorCode(err) != "bad_request" {
		t.Fatalf("self target: expected bad_request, got %v", err)
	}
}

func TestMeetingDMReachesExactlyTwoParties(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)

	d, err := r.Send(context.Background(), testRoster(), "alice", model.ScopeMeetingDM, "bob", "psst")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(d.Recipients)
	if len(d.Recipients) != 2 || d.Recipients[0] != "alice" || d.Recipients[1] != "bob" {
		t.Fatalf("expected [alice bob], got %v", d.Recipients)
	}
}

func TestIneligibleSendPersistsNothing(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)

	// walter is waiting, not admitted: no group chat for him.
	_, err := r.Send(context.Background(), testRoster(), "walter", model.ScopeMeetingGroup, "", "let me in")
	if model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("expected permission_denied, got %v", err)
	}
	if len(st.appended) != 0 {
		t.Fatal("rejected message must not be persisted")
	}
}

func TestWaitingDMBothDirections(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)
	roster := testRoster()

	if _, err := r.Send(context.Background(), roster, "mod", model.ScopeWaitingDM, "walter", "almost ready"); err != nil {
		t.Fatalf("mod → waiting: %v", err)
	}
	if _, err := r.Send(context.Background(), roster, "walter", model.ScopeWaitingDM, "mod", "thanks"); err != nil {
		t.Fatalf("waiting → mod: %v", err)
	}

	// waiting → participant is not a valid direction
	if _, err := r.Send(context.Background(), roster, "walter", model.ScopeWaitingDM, "alice", "hi"); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("expected permission_denied, got %v", err)
	}
	// mod → someone not in the waiting room
	if _, err := r.Send(context.Background(), roster, "mod", model.ScopeWaitingDM, "alice", "hi"); model.ErrorCode(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestWaitingDMHistoryOrdered(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)
	roster := testRoster()

	r.Send(context.Background(), roster, "mod", model.ScopeWaitingDM, "walter", "first")
	r.Send(context.Background(), roster, "walter", model.ScopeWaitingDM, "mod", "second")
	r.Send(context.Background(), roster, "mod", model.ScopeWaitingDM, "walter", "third")

	msgs, err := r.History(context.Background(), roster, "walter", model.ScopeWaitingDM, "mod")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" || msgs[2].Content != "third" {
		t.Fatalf("history out of order: %v", msgs)
	}
}

func TestModDMBroadcastsToPrivilegedOnly(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)
	roster := testRoster()

	d, err := r.Send(context.Background(), roster, "mod", model.ScopeMeetingModDM, "", "backstage")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(d.Recipients)
	if len(d.Recipients) != 2 || d.Recipients[0] != "admin" || d.Recipients[1] != "mod" {
		t.Fatalf("expected [admin mod], got %v", d.Recipients)
	}

	if _, err := r.Send(context.Background(), roster, "alice", model.ScopeMeetingModDM, "", "hello?"); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("expected permission_denied for participant, got %v", err)
	}
}

func TestStreamScopesRequireActiveStream(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)
	roster := testRoster()

	if _, err := r.Send(context.Background(), roster, "obs", model.ScopeStreamGroup, "", "live?"); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("expected permission_denied without stream, got %v", err)
	}

	roster.stream = true
	d, err := r.Send(context.Background(), roster, "obs", model.ScopeStreamGroup, "", "live!")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(d.Recipients)
	// everyone except the plain participants
	if len(d.Recipients) != 3 || d.Recipients[0] != "admin" || d.Recipients[1] != "mod" || d.Recipients[2] != "obs" {
		t.Fatalf("expected [admin mod obs], got %v", d.Recipients)
	}

	// participants stay out even while streaming
	if _, err := r.Send(context.Background(), roster, "alice", model.ScopeStreamGroup, "", "me too"); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("expected permission_denied for participant, got %v", err)
	}
}

func TestStreamDMObserverToModerator(t *testing.T) {
	r := NewRouter("s1", &fakeMessages{}, nil)
	roster := testRoster()
	roster.stream = true

	d, err := r.Send(context.Background(), roster, "obs", model.ScopeStreamDMObsMod, "mod", "question")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(d.Recipients)
	if len(d.Recipients) != 2 || d.Recipients[0] != "mod" || d.Recipients[1] != "obs" {
		t.Fatalf("expected [mod obs], got %v", d.Recipients)
	}

	if _, err := r.Send(context.Background(), roster, "obs", model.ScopeStreamDMObsMod, "alice", "hi"); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("participant target: expected permission_denied, got %v", err)
	}
}

func TestContentTrimmedAndCapped(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)
	roster := testRoster()

	if _, err := r.Send(context.Background(), roster, "alice", model.ScopeMeetingGroup, "", "   "); model.ErrorCode(err) != "bad_request" {
		t.Fatalf("whitespace-only: expected bad_request, got %v", err)
	}

	long := strings.Repeat("a", model.MaxMessageLength+500)
	d, err := r.Send(context.Background(), roster, "alice", model.ScopeMeetingGroup, "", long)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Message.Content) != model.MaxMessageLength {
		t.Fatalf("expected content capped at %d, got %d", model.MaxMessageLength, len(d.Message.Content))
	}
}

func TestCapNeverSplitsMultiByteRune(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)

	// Three bytes per rune, so a byte-indexed cap would land mid-rune.
	long := strings.Repeat("한", model.MaxMessageLength+3)
	d, err := r.Send(context.Background(), testRoster(), "alice", model.ScopeMeetingGroup, "", long)
	if err != nil {
		t.Fatal(err)
	}
	got := d.Message.Content
	if !utf8.ValidString(got) {
		t.Fatal("capped content is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != model.MaxMessageLength {
		t.Fatalf("expected %d characters, got %d", model.MaxMessageLength, n)
	}
}

func TestHistoryEligibilityMirrorsSend(t *testing.T) {
	st := &fakeMessages{}
	r := NewRouter("s1", st, nil)
	roster := testRoster()

	r.Send(context.Background(), roster, "mod", model.ScopeMeetingModDM, "", "secret")

	if _, err := r.History(context.Background(), roster, "alice", model.ScopeMeetingModDM, ""); model.ErrorCode(err) != "permission_denied" {
		t.Fatalf("participant reading mod history: expected permission_denied, got %v", err)
	}
	msgs, err := r.History(context.Background(), roster, "admin", model.ScopeMeetingModDM, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "secret" {
		t.Fatalf("expected mod history visible to admin, got %v", msgs)
	}
}
