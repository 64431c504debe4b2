package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solarisops/assistant-go/internal/pipeline"
)

const historyPrefix = "chat:history:"

// SessionStore 会话历史存储
// 每个会话保存最近若干轮对话，过期自动清理
type SessionStore struct {
	redis    *redis.Client
	ttl      time.Duration
	maxTurns int
}

// NewSessionStore 创建会话存储
// maxTurns按"轮"计，一轮是一问一答两条消息
func NewSessionStore(redisClient *redis.Client, ttlSeconds, maxTurns int) *SessionStore {
	if ttlSeconds <= 0 {
		ttlSeconds = 604800 // 7天
	}
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &SessionStore{
		redis:    redisClient,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		maxTurns: maxTurns,
	}
}

func buildHistoryKey(sessionID string) string {
	return historyPrefix + sessionID
}

// LoadHistory 读取会话历史，不存在时返回空
func (s *SessionStore) LoadHistory(ctx context.Context, sessionID string) ([]pipeline.ConversationTurn, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("redis not initialized")
	}

	data, err := s.redis.Get(ctx, buildHistoryKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	var turns []pipeline.ConversationTurn
	if err := json.Unmarshal([]byte(data), &turns); err != nil {
		return nil, fmt.Errorf("failed to parse session history: %w", err)
	}
	return turns, nil
}

// AppendTurns 追加对话并裁剪到窗口上限，每次写入都刷新TTL
func (s *SessionStore) AppendTurns(ctx context.Context, sessionID string, turns ...pipeline.ConversationTurn) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}

	history, err := s.LoadHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	history = append(history, turns...)
	maxMessages := s.maxTurns * 2
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}

	if err := s.redis.Set(ctx, buildHistoryKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session history: %w", err)
	}
	return nil
}

// ClearHistory 删除会话历史
func (s *SessionStore) ClearHistory(ctx context.Context, sessionID string) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	return s.redis.Del(ctx, buildHistoryKey(sessionID)).Err()
}
