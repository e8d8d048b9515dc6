package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"livesession-backend/internal/auth"
	"livesession-backend/internal/cache"
	"livesession-backend/internal/config"
	"livesession-backend/internal/database"
	"livesession-backend/internal/handler"
	"livesession-backend/internal/session"
)

// Server Fiber 서버 래퍼
type Server struct {
	app         *fiber.App
	cfg         *config.Config
	redis       *cache.RedisClient
	registry    *session.Registry
	wsHandler   *handler.SessionWSHandler
	restHandler *handler.RESTHandler
	jwtManager  *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, redis *cache.RedisClient, registry *session.Registry, wsHandler *handler.SessionWSHandler, restHandler *handler.RESTHandler, jwtManager *auth.JWTManager) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Live Session Coordinator",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		DisableStartupMessage: false,
	})

	return &Server{
		app:         app,
		cfg:         cfg,
		redis:       redis,
		registry:    registry,
		wsHandler:   wsHandler,
		restHandler: restHandler,
		jwtManager:  jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status":   "ok",
			"sessions": s.registry.Count(),
		}
		if err := database.Ping(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		}
		if s.redis != nil {
			if err := s.redis.Health(c.Context()); err != nil {
				status["redis"] = err.Error()
			}
		}
		return c.JSON(status)
	})

	// 토큰 발급 rate limit (남용 방지)
	tokenLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// 조회용 REST 라우트
	api := s.app.Group("/api", auth.AuthMiddleware(s.jwtManager))
	api.Get("/sessions/:sessionId/whiteboard", s.restHandler.GetWhiteboard)
	api.Get("/sessions/:sessionId/chat", s.restHandler.GetChatHistory)
	api.Get("/sessions/:sessionId/breakouts", s.restHandler.GetBreakouts)
	api.Post("/video/token", tokenLimiter, s.restHandler.IssueVideoToken)

	// WebSocket 세션 엔드포인트
	s.app.Get("/ws/session/:sessionId", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 쿠키 우선, 없으면 query 파라미터에서 JWT 추출
		accessToken := c.Cookies("access_token")
		if accessToken == "" {
			accessToken = c.Query("token")
		}
		if accessToken == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		sessionID := c.Params("sessionId")
		if sessionID == "" {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		c.Locals("sessionId", sessionID)
		c.Locals("identity", claims.Identity)
		c.Locals("displayName", claims.DisplayName)
		c.Locals("role", string(claims.Role))

		return c.Next()
	}, websocket.New(s.wsHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Live Session Coordinator starting on %s", s.cfg.Server.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws/session/:sessionId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
