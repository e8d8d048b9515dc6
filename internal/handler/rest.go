package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"livesession-backend/internal/chat"
	"livesession-backend/internal/media"
	"livesession-backend/internal/model"
	"livesession-backend/internal/session"
	"livesession-backend/internal/store"
)

// RESTHandler 조회용 REST 핸들러
type RESTHandler struct {
	registry *session.Registry
	strokes  store.Strokes
	messages store.Messages
	media    media.Service
}

// NewRESTHandler 핸들러 생성
func NewRESTHandler(registry *session.Registry, strokes store.Strokes, messages store.Messages, svc media.Service) *RESTHandler {
	return &RESTHandler{
		registry: registry,
		strokes:  strokes,
		messages: messages,
		media:    svc,
	}
}

func statusFor(err error) int {
	switch model.ErrorCode(err) {
	case "bad_request":
		return fiber.StatusBadRequest
	case "permission_denied", "locked":
		return fiber.StatusForbidden
	case "not_found":
		return fiber.StatusNotFound
	case "conflict", "already_closed", "session_ended":
		return fiber.StatusConflict
	case "media_unavailable":
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"code":  model.ErrorCode(err),
		"error": err.Error(),
	})
}

// GetWhiteboard GET /api/sessions/:sessionId/whiteboard
//
// Served from the hub when the session is live; falls back to the persisted
// stroke log so a board survives a process restart.
func (h *RESTHandler) GetWhiteboard(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	if hub, ok := h.registry.Get(sessionID); ok {
		return c.JSON(hub.Board().Join())
	}

	records, err := h.strokes.History(c.Context(), sessionID)
	if err != nil {
		log.Printf("[REST] Stroke history for %s: %v", sessionID, err)
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"strokes": records})
}

// claimsRoster is the eligibility view for callers without a live hub: the
// requester is the only known identity, with the role their token claims.
// Directed history is thereby always pinned to the requester's own pairs.
type claimsRoster struct {
	identity string
	role     model.Role
}

func (r claimsRoster) RoleOf(identity string) (model.Role, bool) {
	if identity == r.identity {
		return r.role, true
	}
	return "", false
}

func (r claimsRoster) IsWaiting(string) bool { return false }

func (r claimsRoster) Admitted() map[string]model.Role {
	return map[string]model.Role{r.identity: r.role}
}

func (r claimsRoster) StreamActive() bool { return false }

// GetChatHistory GET /api/sessions/:sessionId/chat?scope=...&with=...
//
// Scope eligibility is the router's call, same as over the socket; the
// requester is always the authenticated identity, never a query parameter.
func (h *RESTHandler) GetChatHistory(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	identity, _ := c.Locals("identity").(string)
	roleStr, _ := c.Locals("role").(string)
	role := model.Role(roleStr)
	if identity == "" || !role.Valid() {
		return fail(c, model.ErrPermission)
	}

	scope := model.ChatScope(c.Query("scope"))
	if !scope.Valid() {
		return fail(c, model.ErrValidation)
	}
	with := c.Query("with")

	if hub, ok := h.registry.Get(sessionID); ok {
		msgs, err := hub.ChatHistory(c.Context(), identity, scope, with)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"messages": msgs})
	}

	// No live hub: eligibility falls back to the token's claims.
	router := chat.NewRouter(sessionID, h.messages, nil)
	msgs, err := router.History(c.Context(), claimsRoster{identity: identity, role: role}, identity, scope, with)
	if err != nil {
		log.Printf("[REST] Chat history for %s/%s: %v", sessionID, scope, err)
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// GetBreakouts GET /api/sessions/:sessionId/breakouts?all=true
func (h *RESTHandler) GetBreakouts(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	hub, ok := h.registry.Get(sessionID)
	if !ok {
		return c.JSON(fiber.Map{"rooms": []any{}})
	}
	return c.JSON(fiber.Map{"rooms": hub.ListBreakouts(c.QueryBool("all"))})
}

// VideoTokenRequest POST /api/video/token 요청
type VideoTokenRequest struct {
	SessionID   string `json:"sessionId"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Room        string `json:"room,omitempty"`
}

// IssueVideoToken POST /api/video/token
func (h *RESTHandler) IssueVideoToken(c *fiber.Ctx) error {
	var req VideoTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, model.ErrValidation)
	}
	if req.SessionID == "" || req.Identity == "" {
		return fail(c, model.ErrValidation)
	}

	room := req.Room
	if room == "" {
		room = req.SessionID
	}
	token, err := h.media.JoinToken(room, req.Identity, req.DisplayName)
	if err != nil {
		log.Printf("[REST] Video token for %s: %v", req.Identity, err)
		return fail(c, model.ErrExternalService)
	}
	return c.JSON(fiber.Map{"token": token, "room": room})
}
