package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/servicehub/backend/internal/config"
)

var RedisClient *redis.Client

func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	log.Println("Redis connected successfully")
	return client, nil
}

func CloseRedis(client *redis.Client) error {
	return client.Close()
}

const (
	sessionKeyPrefix   = "agent:session:"
	blacklistKeyPrefix = "token:revoked:"
)

// SessionStore keeps agent sessions and revoked tokens in Redis. Revoked
// tokens are stored under a digest of the token so raw JWTs never appear as
// keys.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) SetAgentSession(ctx context.Context, agentID string, sessionData interface{}, expiration time.Duration) error {
	data, err := json.Marshal(sessionData)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+agentID, data, expiration).Err()
}

func (s *SessionStore) GetAgentSession(ctx context.Context, agentID string, dest interface{}) error {
	data, err := s.client.Get(ctx, sessionKeyPrefix+agentID).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *SessionStore) DeleteAgentSession(ctx context.Context, agentID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+agentID).Err()
}

func (s *SessionStore) BlacklistToken(ctx context.Context, token string, expiration time.Duration) error {
	return s.client.Set(ctx, blacklistKeyPrefix+tokenDigest(token), "1", expiration).Err()
}

func (s *SessionStore) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	count, err := s.client.Exists(ctx, blacklistKeyPrefix+tokenDigest(token)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
