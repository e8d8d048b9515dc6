package model

// Role 세션 내 참가자 역할
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleModerator   Role = "MODERATOR"
	RoleParticipant Role = "PARTICIPANT"
	RoleObserver    Role = "OBSERVER"
)

func (r Role) String() string {
	return string(r)
}

// Privileged reports whether the role joins Main directly and may run
// moderator actions (lock, clear, admit, breakout control).
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleParticipant, RoleObserver:
		return true
	}
	return false
}

// SessionState 세션 라이프사이클
type SessionState string

const (
	SessionLobby SessionState = "LOBBY"
	SessionLive  SessionState = "LIVE"
	SessionEnded SessionState = "ENDED"
)

// ChatScope 채팅 전송 범위
type ChatScope string

const (
	ScopeMeetingGroup   ChatScope = "meeting_group"
	ScopeMeetingDM      ChatScope = "meeting_dm"
	ScopeWaitingDM      ChatScope = "waiting_dm"
	ScopeMeetingModDM   ChatScope = "meeting_mod_dm"
	ScopeStreamGroup    ChatScope = "stream_group"
	ScopeStreamDMObsMod ChatScope = "stream_dm_obs_mod"
)

func (s ChatScope) String() string {
	return string(s)
}

// Directed reports whether the scope addresses a single counterpart and
// therefore requires a target identity.
func (s ChatScope) Directed() bool {
	switch s {
	case ScopeMeetingDM, ScopeWaitingDM, ScopeStreamDMObsMod:
		return true
	}
	return false
}

// StreamOnly reports whether the scope is usable only while a stream is live.
func (s ChatScope) StreamOnly() bool {
	return s == ScopeStreamGroup || s == ScopeStreamDMObsMod
}

// Valid reports whether the scope is one of the known values.
func (s ChatScope) Valid() bool {
	switch s {
	case ScopeMeetingGroup, ScopeMeetingDM, ScopeWaitingDM,
		ScopeMeetingModDM, ScopeStreamGroup, ScopeStreamDMObsMod:
		return true
	}
	return false
}

// StrokeTool 화이트보드 도구
type StrokeTool string

const (
	ToolPencil StrokeTool = "pencil"
	ToolEraser StrokeTool = "eraser"
	ToolLine   StrokeTool = "line"
	ToolRect   StrokeTool = "rect"
	ToolCircle StrokeTool = "circle"
	ToolText   StrokeTool = "text"
)

// Valid reports whether the tool is one of the known values.
func (t StrokeTool) Valid() bool {
	switch t {
	case ToolPencil, ToolEraser, ToolLine, ToolRect, ToolCircle, ToolText:
		return true
	}
	return false
}

// MainRoom is the room selector for the top-level meeting room. Breakout
// rooms are addressed by their index as a selector.
const MainRoom = "main"

// Message processing constants
const (
	MaxMessageLength = 2000 // maximum characters for a single chat message
)
