package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkout-server/internal/domain/session"
	"checkout-server/internal/infrastructure/config"
)

// NewClient 新しいRedisクライアントを作成
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// DraftStore Redisを使用したドラフトストア実装
// ドラフトはTTL付きで保存され、セッションの終端到達時に破棄される
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDraftStore 新しいDraftStoreを作成
func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{
		client: client,
		ttl:    ttl,
	}
}

// Save ドラフトを保存
func (s *DraftStore) Save(ctx context.Context, sessionID string, draft *session.Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Load セッションIDでドラフトを取得
func (s *DraftStore) Load(ctx context.Context, sessionID string) (*session.Draft, error) {
	data, err := s.client.Get(ctx, draftKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, session.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var draft session.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &draft, nil
}

// Clear ドラフトを破棄
func (s *DraftStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, draftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

// draftKey ドラフトのRedisキーを構築
func draftKey(sessionID string) string {
	return "checkout:draft:" + sessionID
}
