package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	LiveKit   LiveKitConfig
	Redis     RedisConfig
	Session   SessionConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// LiveKitConfig LiveKit 설정
type LiveKitConfig struct {
	Host      string
	APIKey    string
	APISecret string
	// HLS segment destination passed to egress when a room stream starts.
	HLSOutputPath string
}

// RedisConfig Redis 설정
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig 세션 코어 정책 상수
type SessionConfig struct {
	// ReconnectGrace is how long a disconnected participant keeps their
	// room assignment before the slot is released.
	ReconnectGrace time.Duration
	// RecentStrokeWindow bounds the non-revoked tail replayed to a late
	// joiner; full history stays in Postgres.
	RecentStrokeWindow int
	// BreakoutDefaultMinutes, when > 0, gives new breakout rooms an
	// auto-close deadline.
	BreakoutDefaultMinutes int
	// IdleTimeout releases a session's in-memory state after it has been
	// empty this long.
	IdleTimeout time.Duration
	// IdleSweepInterval is how often the registry scans for idle sessions.
	IdleSweepInterval time.Duration
	// ChatCacheTTL bounds the Redis recent-history cache.
	ChatCacheTTL time.Duration
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
		},
		LiveKit: LiveKitConfig{
			Host:          getEnv("LIVEKIT_HOST", "ws://localhost:7880"),
			APIKey:        getEnv("LIVEKIT_API_KEY", "devkey"),
			APISecret:     getEnv("LIVEKIT_API_SECRET", "secret"),
			HLSOutputPath: getEnv("LIVEKIT_HLS_OUTPUT", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			ReconnectGrace:         getDuration("RECONNECT_GRACE", 30*time.Second),
			RecentStrokeWindow:     getInt("WB_RECENT_WINDOW", 500),
			BreakoutDefaultMinutes: getInt("BREAKOUT_DEFAULT_MINUTES", 0),
			IdleTimeout:            getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			IdleSweepInterval:      getDuration("SESSION_IDLE_SWEEP", 10*time.Minute),
			ChatCacheTTL:           getDuration("CHAT_CACHE_TTL", 24*time.Hour),
		},
	}
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
