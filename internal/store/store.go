package store

import (
	"context"
	"time"

	"livesession-backend/internal/model"
)

// Strokes persists the append-only whiteboard log. The in-memory board is
// authoritative for ordering; the store is the durable copy kept for
// recording export and cold replay.
type Strokes interface {
	Append(ctx context.Context, rec *model.StrokeRecord) error
	Revoke(ctx context.Context, sessionID string, seqs []int64) error
	// RevokeAll marks the whole log revoked (board clear). Rows are kept.
	RevokeAll(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]model.StrokeRecord, error)
}

// Messages persists scoped chat history.
type Messages interface {
	Append(ctx context.Context, rec *model.ChatMessageRecord) error
	// History returns time-ordered messages for a scope. For directed
	// scopes a/b are the two counterpart identities; b may be empty to
	// mean "everything involving a".
	History(ctx context.Context, sessionID string, scope model.ChatScope, a, b string) ([]model.ChatMessageRecord, error)
}

// Breakouts records breakout room lifecycle for reporting.
type Breakouts interface {
	Create(ctx context.Context, rec *model.BreakoutRecord) error
	Close(ctx context.Context, sessionID string, index int, closedAt time.Time) error
}
