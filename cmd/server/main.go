package main

import (
	"context"
	"log"

	"livesession-backend/internal/auth"
	"livesession-backend/internal/cache"
	"livesession-backend/internal/config"
	"livesession-backend/internal/database"
	"livesession-backend/internal/handler"
	"livesession-backend/internal/media"
	"livesession-backend/internal/presence"
	"livesession-backend/internal/server"
	"livesession-backend/internal/session"
	"livesession-backend/internal/store"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	gormStore := store.NewGormStore(db)

	// Redis 연결 (실패해도 계속 진행 - 캐시/grace 마커는 선택적)
	var redisClient *cache.RedisClient
	var presenceMgr *presence.Manager
	redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.ChatCacheTTL)
	if err != nil {
		log.Printf("⚠️ Redis connection failed: %v (recent-history cache disabled)", err)
		redisClient = nil
	} else {
		log.Printf("✅ Redis connected successfully")
		defer redisClient.Close()
		presenceMgr = presence.NewManagerFromAddr(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.ReconnectGrace)
	}

	// LiveKit 미디어 서비스
	mediaService := media.NewLiveKit(&cfg.LiveKit)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// 핸들러가 Notifier 역할이므로 먼저 만들고 레지스트리에 연결
	wsHandler := handler.NewSessionWSHandler()
	deps := session.Deps{
		Notifier:  wsHandler,
		Media:     mediaService,
		Strokes:   gormStore.StrokeStore(),
		Messages:  gormStore.MessageStore(),
		Breakouts: gormStore.BreakoutStore(),
		Presence:  presenceMgr,
		Cfg:       cfg.Session,
	}
	if redisClient != nil {
		deps.ChatCache = redisClient
	}

	registry := session.NewRegistry(deps)
	wsHandler.Bind(registry)

	restHandler := handler.NewRESTHandler(registry, gormStore.StrokeStore(), gormStore.MessageStore(), mediaService)

	// 유휴 세션 정리
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	registry.StartSweeper(sweepCtx, cfg.Session.IdleTimeout, cfg.Session.IdleSweepInterval)

	// 서버 생성 및 시작
	srv := server.New(cfg, redisClient, registry, wsHandler, restHandler, jwtManager)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
