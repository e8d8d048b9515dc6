package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"livesession-backend/internal/model"
	"livesession-backend/internal/session"
)

// memMessages 테스트용 메시지 저장소
type memMessages struct {
	records      []model.ChatMessageRecord
	lastA, lastB string
}

func (m *memMessages) Append(ctx context.Context, rec *model.ChatMessageRecord) error {
	m.records = append(m.records, *rec)
	return nil
}

func (m *memMessages) History(ctx context.Context, sessionID string, scope model.ChatScope, a, b string) ([]model.ChatMessageRecord, error) {
	m.lastA, m.lastB = a, b
	out := []model.ChatMessageRecord{}
	for _, rec := range m.records {
		if rec.Scope == scope {
			out = append(out, rec)
		}
	}
	return out, nil
}

// chatHistoryApp wires the chat history route behind a stand-in for the auth
// middleware that stamps the given claims.
func chatHistoryApp(t *testing.T, identity string, role model.Role, st *memMessages) *fiber.App {
	t.Helper()
	registry := session.NewRegistry(session.Deps{})
	h := NewRESTHandler(registry, nil, st, nil)

	app := fiber.New()
	app.Get("/api/sessions/:sessionId/chat", func(c *fiber.Ctx) error {
		c.Locals("identity", identity)
		c.Locals("role", string(role))
		return c.Next()
	}, h.GetChatHistory)
	return app
}

func TestChatHistoryModScopeNeedsModRole(t *testing.T) {
	st := &memMessages{}

	app := chatHistoryApp(t, "alice", model.RoleParticipant, st)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/s1/chat?scope=meeting_mod_dm", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("participant reading mod history: expected 403, got %d", resp.StatusCode)
	}

	app = chatHistoryApp(t, "mod", model.RoleModerator, st)
	resp, err = app.Test(httptest.NewRequest("GET", "/api/sessions/s1/chat?scope=meeting_mod_dm", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("moderator reading mod history: expected 200, got %d", resp.StatusCode)
	}
}

func TestChatHistoryDirectedPairPinnedToRequester(t *testing.T) {
	st := &memMessages{}
	app := chatHistoryApp(t, "alice", model.RoleParticipant, st)

	// Whatever the query claims, the pair is requester + with.
	req := httptest.NewRequest("GET", "/api/sessions/s1/chat?scope=meeting_dm&with=bob&a=mallory&b=bob", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if st.lastA != "alice" || st.lastB != "bob" {
		t.Fatalf("directed query must be pinned to the requester, got a=%q b=%q", st.lastA, st.lastB)
	}
}

func TestChatHistoryRejectsMissingClaims(t *testing.T) {
	st := &memMessages{}
	registry := session.NewRegistry(session.Deps{})
	h := NewRESTHandler(registry, nil, st, nil)

	app := fiber.New()
	app.Get("/api/sessions/:sessionId/chat", h.GetChatHistory)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/s1/chat?scope=meeting_group", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("no claims: expected 403, got %d", resp.StatusCode)
	}
}
