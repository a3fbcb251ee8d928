package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/config"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ido:campaign:"

var errStaleGeneration = errors.New("cache generation changed")

// New 创建 Redis 客户端，Addr 为空时返回 nil 表示不启用缓存
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// CampaignCache 活动记录缓存。只缓存持久化记录，阶段总是在读取时重新计算。
// 零值和 nil 接收者都可用，此时所有读取都未命中。
type CampaignCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCampaignCache 创建活动缓存
func NewCampaignCache(client *redis.Client, ttl time.Duration) *CampaignCache {
	return &CampaignCache{client: client, ttl: ttl}
}

// Key 活动缓存键
func Key(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}

func genKey(id int64) string {
	return Key(id) + ":gen"
}

// Enabled 是否连接了 Redis
func (c *CampaignCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get 读取缓存，出错按未命中处理
func (c *CampaignCache) Get(ctx context.Context, id int64) (*model.CampaignModel, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Failed to read campaign %d from cache: %v", id, err)
		}
		return nil, false
	}

	var campaign model.CampaignModel
	if err := json.Unmarshal(raw, &campaign); err != nil {
		logger.Warn("Dropping undecodable cache entry for campaign %d: %v", id, err)
		_ = c.client.Del(ctx, Key(id)).Err()
		return nil, false
	}
	return &campaign, true
}

// Generation 当前缓存代数，每次 Invalidate 递增。
// 回源前先读取代数，回填时交给 Set，失效发生在两者之间时放弃回填。
func (c *CampaignCache) Generation(ctx context.Context, id int64) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	gen, err := c.client.Get(ctx, genKey(id)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("Failed to read cache generation for campaign %d: %v", id, err)
		return 0, false
	}
	return gen, true
}

// Set 按代数回填缓存，代数已变化时不写入，失败只记录日志
func (c *CampaignCache) Set(ctx context.Context, campaign *model.CampaignModel, gen int64) {
	if !c.Enabled() || campaign == nil {
		return
	}
	raw, err := json.Marshal(campaign)
	if err != nil {
		logger.Warn("Failed to encode campaign %d for cache: %v", campaign.Id, err)
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey(campaign.Id)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(campaign.Id), raw, c.ttl)
			return nil
		})
		return err
	}, genKey(campaign.Id))

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		logger.Debug("Skipping stale cache fill for campaign %d", campaign.Id)
	default:
		logger.Warn("Failed to write campaign %d to cache: %v", campaign.Id, err)
	}
}

// Invalidate 递增代数并删除缓存
func (c *CampaignCache) Invalidate(ctx context.Context, id int64) error {
	if !c.Enabled() {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Del(ctx, Key(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate campaign %d: %w", id, err)
	}
	return nil
}
