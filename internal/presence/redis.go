package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GraceMarker Redis에 저장될 재접속 유예 데이터
//
// The in-process grace timer is authoritative for slot release; the marker
// makes grace state observable to other nodes and survives a restart.
type GraceMarker struct {
	SessionID      string    `json:"session_id"`
	Identity       string    `json:"identity"`
	Room           string    `json:"room"` // room selector held through the grace window
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// Manager 재접속 유예 마커 관리자
type Manager struct {
	client *redis.Client
	grace  time.Duration
}

// NewManager 생성자
func NewManager(client *redis.Client, grace time.Duration) *Manager {
	return &Manager{client: client, grace: grace}
}

// NewManagerFromAddr 독립 연결 생성자
func NewManagerFromAddr(addr, password string, db int, grace time.Duration) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Manager{client: rdb, grace: grace}
}

func (m *Manager) key(sessionID, identity string) string {
	return fmt.Sprintf("grace:%s:%s", sessionID, identity)
}

// MarkDisconnected 유예 마커 기록 (TTL = 유예 시간)
func (m *Manager) MarkDisconnected(ctx context.Context, sessionID, identity, room string) error {
	data := GraceMarker{
		SessionID:      sessionID,
		Identity:       identity,
		Room:           room,
		DisconnectedAt: time.Now(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return m.client.Set(ctx, m.key(sessionID, identity), jsonData, m.grace).Err()
}

// ClearDisconnected 재접속 또는 슬롯 해제 시 마커 제거
func (m *Manager) ClearDisconnected(ctx context.Context, sessionID, identity string) error {
	return m.client.Del(ctx, m.key(sessionID, identity)).Err()
}

// GetMarker 마커 조회 (없으면 nil — 유예 만료)
func (m *Manager) GetMarker(ctx context.Context, sessionID, identity string) (*GraceMarker, error) {
	val, err := m.client.Get(ctx, m.key(sessionID, identity)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data GraceMarker
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}
