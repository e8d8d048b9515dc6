package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"livesession-backend/internal/model"
	"livesession-backend/internal/store"
)

// Roster is the session-state view the router needs for eligibility checks.
// The hub implements it; methods are called under the hub's serialization,
// so implementations must not take the hub lock again.
type Roster interface {
	// RoleOf returns the role of an admitted participant.
	RoleOf(identity string) (model.Role, bool)
	// IsWaiting reports whether the identity sits in the waiting room.
	IsWaiting(identity string) bool
	// Admitted returns a snapshot of admitted identities and their roles.
	Admitted() map[string]model.Role
	// StreamActive reports whether the session stream is currently live.
	StreamActive() bool
}

// Cache is the optional recent-history fast path (Redis).
type Cache interface {
	AddMessage(ctx context.Context, sessionID string, rec *model.ChatMessageRecord) error
	GetMessages(ctx context.Context, sessionID string, scope model.ChatScope) ([]model.ChatMessageRecord, error)
}

// Delivery is a routed message plus the explicit identities it should reach.
// The set never includes waiting-room entrants; a session can have connected
// subscribers who are not yet admitted, and they hear nothing.
type Delivery struct {
	Message    *model.ChatMessageRecord
	Recipients []string
}

// Router 멀티 스코프 채팅 라우터
type Router struct {
	sessionID string
	store     store.Messages
	cache     Cache
}

// NewRouter 라우터 생성
func NewRouter(sessionID string, st store.Messages, cache Cache) *Router {
	return &Router{sessionID: sessionID, store: st, cache: cache}
}

// Send validates scope eligibility and addressing, persists the message,
// and returns the delivery set. A failed validation persists nothing.
func (r *Router) Send(ctx context.Context, roster Roster, from string, scope model.ChatScope, to, content string) (*Delivery, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", model.ErrValidation, scope)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", model.ErrValidation)
	}
	// The cap counts characters, so trim on rune boundaries; a byte slice
	// could split a multi-byte rune.
	if utf8.RuneCountInString(content) > model.MaxMessageLength {
		runes := []rune(content)
		content = string(runes[:model.MaxMessageLength])
	}

	if scope.Directed() {
		if to == "" {
			return nil, fmt.Errorf("%w: scope %s requires a target", model.ErrValidation, scope)
		}
		if to == from {
			return nil, fmt.Errorf("%w: cannot message yourself", model.ErrValidation)
		}
	} else if to != "" {
		return nil, fmt.Errorf("%w: scope %s does not take a target", model.ErrValidation, scope)
	}

	recipients, err := r.resolve(roster, from, scope, to)
	if err != nil {
		return nil, err
	}

	rec := &model.ChatMessageRecord{
		MessageID: uuid.New().String(),
		SessionID: r.sessionID,
		Scope:     scope,
		Sender:    from,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if to != "" {
		rec.Target = &to
	}

	if r.store != nil {
		if err := r.store.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist message: %w", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.AddMessage(ctx, r.sessionID, rec); err != nil {
			log.Printf("[Chat %s] Failed to cache message: %v", r.sessionID, err)
		}
	}

	return &Delivery{Message: rec, Recipients: recipients}, nil
}

// resolve enforces the per-scope eligibility/addressing table and computes
// the recipient set.
func (r *Router) resolve(roster Roster, from string, scope model.ChatScope, to string) ([]string, error) {
	fromRole, admitted := roster.RoleOf(from)

	if scope.StreamOnly() && !roster.StreamActive() {
		return nil, fmt.Errorf("%w: no active stream", model.ErrPermission)
	}

	switch scope {
	case model.ScopeMeetingGroup:
		if !admitted {
			return nil, fmt.Errorf("%w: sender not admitted", model.ErrPermission)
		}
		all := roster.Admitted()
		recipients := make([]string, 0, len(all))
		for identity := range all {
			recipients = append(recipients, identity)
		}
		return recipients, nil

	case model.ScopeMeetingDM:
		if !admitted {
			return nil, fmt.Errorf("%w: sender not admitted", model.ErrPermission)
		}
		if _, ok := roster.RoleOf(to); !ok {
			return nil, fmt.Errorf("%w: recipient %s", model.ErrNotFound, to)
		}
		return []string{from, to}, nil

	case model.ScopeWaitingDM:
		// moderator ↔ a specific waiting entrant, either direction
		switch {
		case admitted && fromRole.Privileged():
			if !roster.IsWaiting(to) {
				return nil, fmt.Errorf("%w: %s is not waiting", model.ErrNotFound, to)
			}
		case roster.IsWaiting(from):
			toRole, ok := roster.RoleOf(to)
			if !ok || !toRole.Privileged() {
				return nil, fmt.Errorf("%w: target must be a moderator", model.ErrPermission)
			}
		default:
			return nil, fmt.Errorf("%w: scope %s", model.ErrPermission, scope)
		}
		return []string{from, to}, nil

	case model.ScopeMeetingModDM:
		if !admitted || !fromRole.Privileged() {
			return nil, fmt.Errorf("%w: moderators only", model.ErrPermission)
		}
		recipients := make([]string, 0, 4)
		for identity, role := range roster.Admitted() {
			if role.Privileged() {
				recipients = append(recipients, identity)
			}
		}
		return recipients, nil

	case model.ScopeStreamGroup:
		if !admitted || fromRole == model.RoleParticipant {
			return nil, fmt.Errorf("%w: observers and moderators only", model.ErrPermission)
		}
		recipients := make([]string, 0, 8)
		for identity, role := range roster.Admitted() {
			if role != model.RoleParticipant {
				recipients = append(recipients, identity)
			}
		}
		return recipients, nil

	case model.ScopeStreamDMObsMod:
		if !admitted || fromRole == model.RoleParticipant {
			return nil, fmt.Errorf("%w: observers and moderators only", model.ErrPermission)
		}
		toRole, ok := roster.RoleOf(to)
		if !ok || toRole == model.RoleParticipant {
			return nil, fmt.Errorf("%w: target must be an observer or moderator", model.ErrPermission)
		}
		return []string{from, to}, nil
	}

	return nil, fmt.Errorf("%w: unknown scope %q", model.ErrValidation, scope)
}

// History returns the time-ordered messages the requester may see for a
// scope, optionally narrowed to one counterpart for directed scopes. Serves
// both first view and reconnect repopulation, so ordering is deterministic.
func (r *Router) History(ctx context.Context, roster Roster, requester string, scope model.ChatScope, with string) ([]model.ChatMessageRecord, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", model.ErrValidation, scope)
	}

	role, admitted := roster.RoleOf(requester)
	switch {
	case scope == model.ScopeWaitingDM:
		if !roster.IsWaiting(requester) && !(admitted && role.Privileged()) {
			return nil, fmt.Errorf("%w: scope %s", model.ErrPermission, scope)
		}
	case scope == model.ScopeMeetingModDM:
		if !admitted || !role.Privileged() {
			return nil, fmt.Errorf("%w: moderators only", model.ErrPermission)
		}
	case scope.StreamOnly():
		if !admitted || role == model.RoleParticipant {
			return nil, fmt.Errorf("%w: observers and moderators only", model.ErrPermission)
		}
	default:
		if !admitted {
			return nil, fmt.Errorf("%w: sender not admitted", model.ErrPermission)
		}
	}

	// Group scopes can come straight from the recent cache.
	if r.cache != nil && !scope.Directed() {
		if cached, err := r.cache.GetMessages(ctx, r.sessionID, scope); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	if r.store == nil {
		return nil, nil
	}
	return r.store.History(ctx, r.sessionID, scope, requester, with)
}
