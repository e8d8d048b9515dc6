package model

import (
	"time"
)

// StrokeRecord 화이트보드 획 영속 데이터
//
// The server-assigned sequence number is the authoritative identity of a
// stroke; the client-local id is cosmetic and only echoed back for
// reconciliation. Revoked strokes stay in the table so the log replays
// identically for recording export.
type StrokeRecord struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string     `gorm:"type:varchar(64);not null;index:idx_stroke_session_seq,unique" json:"session_id"`
	Seq       int64      `gorm:"not null;index:idx_stroke_session_seq,unique" json:"seq"`
	ClientID  string     `gorm:"type:varchar(64)" json:"client_id"`
	Author    string     `gorm:"type:varchar(255);not null" json:"author"`
	Tool      StrokeTool `gorm:"type:varchar(16);not null" json:"tool"`
	Payload   string     `gorm:"type:jsonb;not null" json:"payload"` // geometry/text JSON
	Color     string     `gorm:"type:varchar(32)" json:"color"`
	Size      int        `gorm:"default:2" json:"size"`
	Revoked   bool       `gorm:"default:false;index" json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (StrokeRecord) TableName() string {
	return "whiteboard_strokes"
}

// ChatMessageRecord 채팅 메시지 영속 데이터
type ChatMessageRecord struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	// MessageID is assigned before persistence so the sender's ack and the
	// broadcast carry the same id even if the DB write is still in flight.
	MessageID string    `gorm:"type:varchar(36);uniqueIndex" json:"message_id"`
	SessionID string    `gorm:"type:varchar(64);not null;index:idx_chat_session_scope" json:"session_id"`
	Scope     ChatScope `gorm:"type:varchar(32);not null;index:idx_chat_session_scope" json:"scope"`
	Sender    string    `gorm:"type:varchar(255);not null" json:"sender"`
	Target    *string   `gorm:"type:varchar(255)" json:"target,omitempty"` // directed scopes only
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ChatMessageRecord) TableName() string {
	return "chat_messages"
}

// BreakoutRecord 브레이크아웃 룸 이력 (리포팅용)
type BreakoutRecord struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID   string     `gorm:"type:varchar(64);not null;index:idx_breakout_session_idx,unique" json:"session_id"`
	Index       int        `gorm:"column:room_index;not null;index:idx_breakout_session_idx,unique" json:"index"`
	RoomName    string     `gorm:"type:varchar(128);not null" json:"room_name"`
	PlaybackURL *string    `gorm:"type:text" json:"playback_url,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func (BreakoutRecord) TableName() string {
	return "breakout_rooms"
}
