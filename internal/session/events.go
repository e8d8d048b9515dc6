package session

// Server→client broadcast event names. The hub emits these after the
// originating mutation has been confirmed, never before.
const (
	EventParticipantsUpdated = "participants:updated"
	EventParticipantAdmitted = "participant:admitted"
	EventPermissionsChanged  = "participant:permissions:changed"

	EventStrokeAdded    = "whiteboard:stroke:added"
	EventStrokesRevoked = "whiteboard:stroke:revoked"
	EventBoardCleared   = "whiteboard:cleared"
	EventLockChanged    = "whiteboard:lock:changed"

	EventBreakoutCreated  = "breakouts:created"
	EventBreakoutExtended = "breakouts:extended"
	EventBreakoutClosed   = "breakouts:closed"
	EventParticipantMoved = "breakouts:moved"

	EventChatMessage = "chat:message"

	EventStreamStarted = "stream:started"
	EventStreamStopped = "stream:stopped"
	EventSessionEnded  = "session:ended"
)

// Notifier delivers events to connected clients of a session. Implemented
// by the WS handler; the hub never touches sockets directly.
type Notifier interface {
	// Send delivers to the listed identities only.
	Send(sessionID string, identities []string, event string, payload any)
	// Broadcast delivers to every connected client of the session,
	// optionally excluding one identity (typically the originator, who
	// already has the state locally).
	Broadcast(sessionID string, event string, payload any, excludeIdentity string)
}
