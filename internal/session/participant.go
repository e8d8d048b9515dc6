package session

import (
	"sort"
	"time"

	"livesession-backend/internal/model"
)

// Participant 세션 참가자 (Main 또는 브레이크아웃 룸 소속)
//
// Room is the single room reference: 0 means Main, anything else is an open
// breakout index. It only ever changes through the hub's move operations.
type Participant struct {
	Identity    string
	DisplayName string
	Role        model.Role
	Room        int
	Connected   bool

	// media publish permissions, toggled by moderators
	CanPublishAudio bool
	CanPublishVideo bool
	CanScreenshare  bool

	JoinedAt time.Time

	// graceTimer releases the slot when the reconnect window elapses.
	graceTimer *time.Timer
}

// WaitingEntry 대기실 항목
type WaitingEntry struct {
	Identity    string
	DisplayName string
	Email       string
	Role        model.Role
	JoinedAt    time.Time
}

// ParticipantSnapshot 참가자 목록 응답용 뷰
type ParticipantSnapshot struct {
	Identity        string     `json:"identity"`
	DisplayName     string     `json:"displayName"`
	Role            model.Role `json:"role"`
	Room            int        `json:"room"` // 0 == Main
	Connected       bool       `json:"connected"`
	CanPublishAudio bool       `json:"canPublishAudio"`
	CanPublishVideo bool       `json:"canPublishVideo"`
	CanScreenshare  bool       `json:"canScreenshare"`
	JoinedAt        time.Time  `json:"joinedAt"`
}

// WaitingSnapshot 대기실 목록 응답용 뷰
type WaitingSnapshot struct {
	Identity    string     `json:"identity"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

func (p *Participant) snapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		Identity:        p.Identity,
		DisplayName:     p.DisplayName,
		Role:            p.Role,
		Room:            p.Room,
		Connected:       p.Connected,
		CanPublishAudio: p.CanPublishAudio,
		CanPublishVideo: p.CanPublishVideo,
		CanScreenshare:  p.CanScreenshare,
		JoinedAt:        p.JoinedAt,
	}
}

func (w *WaitingEntry) snapshot() WaitingSnapshot {
	return WaitingSnapshot{
		Identity:    w.Identity,
		DisplayName: w.DisplayName,
		Email:       w.Email,
		Role:        w.Role,
		JoinedAt:    w.JoinedAt,
	}
}

func sortParticipants(list []ParticipantSnapshot) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].Identity < list[j].Identity
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
}

func sortWaiting(list []WaitingSnapshot) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].Identity < list[j].Identity
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
}
