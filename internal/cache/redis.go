package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"livesession-backend/internal/model"
)

// RedisClient wraps the Redis client for recent chat history caching.
// Postgres holds the durable log; this list serves the reconnect fast path.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, ttl: ttl}, nil
}

func chatKey(sessionID string, scope model.ChatScope) string {
	return "session:" + sessionID + ":chat:" + scope.String()
}

// AddMessage appends a message to the scope's recent list
func (r *RedisClient) AddMessage(ctx context.Context, sessionID string, rec *model.ChatMessageRecord) error {
	key := chatKey(sessionID, rec.Scope)

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to cache message: %v", err)
		return err
	}

	r.client.Expire(ctx, key, r.ttl)
	return nil
}

// GetMessages retrieves the cached recent list for a scope
func (r *RedisClient) GetMessages(ctx context.Context, sessionID string, scope model.ChatScope) ([]model.ChatMessageRecord, error) {
	results, err := r.client.LRange(ctx, chatKey(sessionID, scope), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]model.ChatMessageRecord, 0, len(results))
	for _, data := range results {
		var rec model.ChatMessageRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		messages = append(messages, rec)
	}

	return messages, nil
}

// DeleteSession removes all cached chat lists for a session
func (r *RedisClient) DeleteSession(ctx context.Context, sessionID string) error {
	scopes := []model.ChatScope{
		model.ScopeMeetingGroup, model.ScopeMeetingDM, model.ScopeWaitingDM,
		model.ScopeMeetingModDM, model.ScopeStreamGroup, model.ScopeStreamDMObsMod,
	}
	keys := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		keys = append(keys, chatKey(sessionID, scope))
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
