package media

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"livesession-backend/internal/config"
)

// ParticipantInfo 미디어 룸 참가자 정보
type ParticipantInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
}

// StreamInfo 시작된 HLS 스트림 디스크립터
type StreamInfo struct {
	EgressID    string `json:"egressId"`
	PlaybackURL string `json:"playbackUrl"`
}

// Service is the external media collaborator. The coordination core only
// holds handles to rooms it created and never re-implements media transport.
type Service interface {
	CreateRoom(ctx context.Context, name string) error
	CloseRoom(ctx context.Context, name string) error
	ListParticipants(ctx context.Context, name string) ([]ParticipantInfo, error)
	StartStream(ctx context.Context, room string) (*StreamInfo, error)
	StopStream(ctx context.Context, egressID string) error
	JoinToken(room, identity, displayName string) (string, error)
}

// LiveKit Service 구현체
type LiveKit struct {
	cfg        *config.LiveKitConfig
	roomClient *lksdk.RoomServiceClient
	egress     *lksdk.EgressClient
}

// NewLiveKit LiveKit 클라이언트 생성
func NewLiveKit(cfg *config.LiveKitConfig) *LiveKit {
	return &LiveKit{
		cfg:        cfg,
		roomClient: lksdk.NewRoomServiceClient(cfg.Host, cfg.APIKey, cfg.APISecret),
		egress:     lksdk.NewEgressClient(cfg.Host, cfg.APIKey, cfg.APISecret),
	}
}

// CreateRoom 미디어 룸 생성
func (l *LiveKit) CreateRoom(ctx context.Context, name string) error {
	_, err := l.roomClient.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name: name,
	})
	if err != nil {
		return fmt.Errorf("livekit create room %s: %w", name, err)
	}
	log.Printf("[LiveKit] Created room: %s", name)
	return nil
}

// CloseRoom 미디어 룸 삭제 (모든 참가자 강제 퇴장)
func (l *LiveKit) CloseRoom(ctx context.Context, name string) error {
	_, err := l.roomClient.DeleteRoom(ctx, &livekit.DeleteRoomRequest{
		Room: name,
	})
	if err != nil {
		return fmt.Errorf("livekit delete room %s: %w", name, err)
	}
	log.Printf("[LiveKit] Closed room: %s", name)
	return nil
}

// ListParticipants 미디어 룸 참가자 목록 조회
func (l *LiveKit) ListParticipants(ctx context.Context, name string) ([]ParticipantInfo, error) {
	res, err := l.roomClient.ListParticipants(ctx, &livekit.ListParticipantsRequest{
		Room: name,
	})
	if err != nil {
		return nil, fmt.Errorf("livekit list participants %s: %w", name, err)
	}

	participants := make([]ParticipantInfo, 0, len(res.Participants))
	for _, p := range res.Participants {
		participants = append(participants, ParticipantInfo{
			Identity: p.Identity,
			Name:     p.Name,
			JoinedAt: p.JoinedAt,
		})
	}
	return participants, nil
}

// StartStream 룸 HLS 스트림 시작 (room composite egress)
func (l *LiveKit) StartStream(ctx context.Context, room string) (*StreamInfo, error) {
	playlist := room + ".m3u8"
	req := &livekit.RoomCompositeEgressRequest{
		RoomName: room,
		SegmentOutputs: []*livekit.SegmentedFileOutput{
			{
				FilenamePrefix: l.cfg.HLSOutputPath + "/" + room,
				PlaylistName:   playlist,
			},
		},
	}

	info, err := l.egress.StartRoomCompositeEgress(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("livekit start egress %s: %w", room, err)
	}

	log.Printf("[LiveKit] Stream started: room=%s egress=%s", room, info.EgressId)
	return &StreamInfo{
		EgressID:    info.EgressId,
		PlaybackURL: l.cfg.HLSOutputPath + "/" + playlist,
	}, nil
}

// StopStream 스트림 중지
func (l *LiveKit) StopStream(ctx context.Context, egressID string) error {
	_, err := l.egress.StopEgress(ctx, &livekit.StopEgressRequest{
		EgressId: egressID,
	})
	if err != nil {
		return fmt.Errorf("livekit stop egress %s: %w", egressID, err)
	}
	log.Printf("[LiveKit] Stream stopped: egress=%s", egressID)
	return nil
}

// JoinToken 룸 접속용 액세스 토큰 발급
func (l *LiveKit) JoinToken(room, identity, displayName string) (string, error) {
	at := auth.NewAccessToken(l.cfg.APIKey, l.cfg.APISecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}

	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetValidFor(time.Hour * 24)

	return at.ToJWT()
}
