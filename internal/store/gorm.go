package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"livesession-backend/internal/model"
)

// GormStore Postgres 영속 계층 (Strokes + Messages + Breakouts)
type GormStore struct {
	db *gorm.DB
}

// NewGormStore GormStore 생성
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append 획 저장
func (s *GormStore) Append(ctx context.Context, rec *model.StrokeRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append stroke: %w", err)
	}
	return nil
}

// Revoke 지정 seq 획을 revoked 처리 (이미 revoked여도 무해)
func (s *GormStore) Revoke(ctx context.Context, sessionID string, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.StrokeRecord{}).
		Where("session_id = ? AND seq IN ? AND revoked = ?", sessionID, seqs, false).
		Updates(map[string]interface{}{
			"revoked":    true,
			"revoked_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("revoke strokes: %w", err)
	}
	return nil
}

// RevokeAll 보드 클리어: 전체 로그를 revoked 처리, 행은 유지
func (s *GormStore) RevokeAll(ctx context.Context, sessionID string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&model.StrokeRecord{}).
		Where("session_id = ? AND revoked = ?", sessionID, false).
		Updates(map[string]interface{}{
			"revoked":    true,
			"revoked_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("revoke all strokes: %w", err)
	}
	return nil
}

// History 세션 전체 획 로그 (seq 순)
func (s *GormStore) History(ctx context.Context, sessionID string) ([]model.StrokeRecord, error) {
	var strokes []model.StrokeRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&strokes).Error
	if err != nil {
		return nil, fmt.Errorf("stroke history: %w", err)
	}
	return strokes, nil
}

// AppendMessage 채팅 메시지 저장
func (s *GormStore) AppendMessage(ctx context.Context, rec *model.ChatMessageRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// MessageHistory 스코프별 시간순 메시지 조회
func (s *GormStore) MessageHistory(ctx context.Context, sessionID string, scope model.ChatScope, a, b string) ([]model.ChatMessageRecord, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ? AND scope = ?", sessionID, scope)

	if scope.Directed() {
		if b != "" {
			q = q.Where("(sender = ? AND target = ?) OR (sender = ? AND target = ?)", a, b, b, a)
		} else {
			q = q.Where("sender = ? OR target = ?", a, a)
		}
	}

	var messages []model.ChatMessageRecord
	if err := q.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	return messages, nil
}

// CreateBreakout 브레이크아웃 룸 이력 생성
func (s *GormStore) CreateBreakout(ctx context.Context, rec *model.BreakoutRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create breakout record: %w", err)
	}
	return nil
}

// CloseBreakout 브레이크아웃 룸 종료 시각 기록
func (s *GormStore) CloseBreakout(ctx context.Context, sessionID string, index int, closedAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.BreakoutRecord{}).
		Where("session_id = ? AND room_index = ? AND closed_at IS NULL", sessionID, index).
		Update("closed_at", closedAt).Error
	if err != nil {
		return fmt.Errorf("close breakout record: %w", err)
	}
	return nil
}

// strokeStore / messageStore / breakoutStore adapt GormStore to the
// per-component interfaces so each core package depends only on what it uses.

type strokeStore struct{ *GormStore }

func (s strokeStore) Append(ctx context.Context, rec *model.StrokeRecord) error {
	return s.GormStore.Append(ctx, rec)
}

type messageStore struct{ *GormStore }

func (s messageStore) Append(ctx context.Context, rec *model.ChatMessageRecord) error {
	return s.GormStore.AppendMessage(ctx, rec)
}

func (s messageStore) History(ctx context.Context, sessionID string, scope model.ChatScope, a, b string) ([]model.ChatMessageRecord, error) {
	return s.GormStore.MessageHistory(ctx, sessionID, scope, a, b)
}

type breakoutStore struct{ *GormStore }

func (s breakoutStore) Create(ctx context.Context, rec *model.BreakoutRecord) error {
	return s.GormStore.CreateBreakout(ctx, rec)
}

func (s breakoutStore) Close(ctx context.Context, sessionID string, index int, closedAt time.Time) error {
	return s.GormStore.CloseBreakout(ctx, sessionID, index, closedAt)
}

// StrokeStore Strokes 인터페이스 뷰
func (s *GormStore) StrokeStore() Strokes { return strokeStore{s} }

// MessageStore Messages 인터페이스 뷰
func (s *GormStore) MessageStore() Messages { return messageStore{s} }

// BreakoutStore Breakouts 인터페이스 뷰
func (s *GormStore) BreakoutStore() Breakouts { return breakoutStore{s} }
