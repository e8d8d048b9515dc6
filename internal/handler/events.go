package handler

import (
	"encoding/json"

	"livesession-backend/internal/model"
)

// 클라이언트 → 서버 이벤트 이름
const (
	EvtJoinRoom      = "join-room"
	EvtLeaveRoom     = "leave-room"
	EvtWaitingAdmit  = "waiting:admit"
	EvtWaitingRemove = "waiting:remove"
	EvtWaitingAll    = "waiting:admitAll"
	EvtPermissions   = "participant:permissions"
	EvtParticipants  = "participants:list"

	EvtBoardJoin   = "whiteboard:join"
	EvtStrokeAdd   = "whiteboard:stroke:add"
	EvtStrokeDrop  = "whiteboard:stroke:revoke"
	EvtBoardUndo   = "whiteboard:undo"
	EvtBoardRedo   = "whiteboard:redo"
	EvtBoardClear  = "whiteboard:clear"
	EvtBoardLock   = "whiteboard:lock"

	EvtBreakoutCreate = "breakouts:create"
	EvtBreakoutExtend = "breakouts:extend"
	EvtBreakoutClose  = "breakouts:close"
	EvtBreakoutList   = "breakouts:list"
	EvtBreakoutStream = "breakouts:stream-start"
	EvtMoveTo         = "breakouts:move-to"
	EvtMoveBack       = "breakouts:move-back"

	EvtChatSend    = "chat:send"
	EvtChatHistory = "chat:history"

	EvtStreamStart = "stream:start"
	EvtStreamStop  = "stream:stop"
	EvtSessionEnd  = "session:end"
)

// Envelope 요청/응답 공통 포맷
type Envelope struct {
	Event string          `json:"event"`
	ID    int64           `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StrokeAddPayload whiteboard:stroke:add
type StrokeAddPayload struct {
	ClientID string           `json:"clientId"`
	Tool     model.StrokeTool `json:"tool"`
	Payload  json.RawMessage  `json:"payload"`
	Color    string           `json:"color,omitempty"`
	Size     int              `json:"size,omitempty"`
}

// StrokeRevokePayload whiteboard:stroke:revoke
type StrokeRevokePayload struct {
	Seqs []int64 `json:"seqs"`
}

// BoardLockPayload whiteboard:lock
type BoardLockPayload struct {
	Locked bool `json:"locked"`
}

// WaitingPayload waiting:admit / waiting:remove
type WaitingPayload struct {
	Identity string `json:"identity"`
}

// PermissionsPayload participant:permissions
type PermissionsPayload struct {
	Identity    string `json:"identity"`
	Audio       *bool  `json:"audio,omitempty"`
	Video       *bool  `json:"video,omitempty"`
	Screenshare *bool  `json:"screenshare,omitempty"`
}

// ParticipantsPayload participants:list (room 0 == Main)
type ParticipantsPayload struct {
	Room int `json:"room"`
}

// BreakoutIndexPayload breakouts:close 등 index만 필요한 요청
type BreakoutIndexPayload struct {
	Index int `json:"index"`
}

// BreakoutExtendPayload breakouts:extend
type BreakoutExtendPayload struct {
	Index      int `json:"index"`
	AddMinutes int `json:"addMinutes"`
}

// MovePayload breakouts:move-to / move-back
type MovePayload struct {
	Identity string `json:"identity,omitempty"`
	Index    int    `json:"index"`
}

// ChatSendPayload chat:send
type ChatSendPayload struct {
	Scope   model.ChatScope `json:"scope"`
	To      string          `json:"to,omitempty"`
	Content string          `json:"content"`
}

// ChatHistoryPayload chat:history
type ChatHistoryPayload struct {
	Scope model.ChatScope `json:"scope"`
	With  string          `json:"with,omitempty"`
}

// BreakoutListPayload breakouts:list
type BreakoutListPayload struct {
	All bool `json:"all,omitempty"`
}

// ackOK 성공 ack 데이터
func ackOK(extra map[string]any) map[string]any {
	data := map[string]any{"ok": true}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// ackErr maps a domain error onto the wire error shape.
func ackErr(err error) map[string]any {
	return map[string]any{
		"ok":    false,
		"code":  model.ErrorCode(err),
		"error": err.Error(),
	}
}
