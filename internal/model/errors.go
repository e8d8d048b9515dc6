package model

import "errors"

var (
	ErrValidation      = errors.New("malformed payload")
	ErrPermission      = errors.New("you do not have permission")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("media service failure")
	ErrLocked          = errors.New("whiteboard is locked")
	ErrSessionEnded    = errors.New("session has ended")

	// ErrAlreadyClosed marks an idempotent no-op, not a real failure.
	// Callers surface it as a successful ack.
	ErrAlreadyClosed = errors.New("already closed")
)

// ErrorCode maps an error to the short stable string carried in
// acknowledgments. The UI maps these to actionable notices.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrPermission):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalService):
		return "media_unavailable"
	case errors.Is(err, ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, ErrValidation):
		return "bad_request"
	default:
		return "internal"
	}
}
