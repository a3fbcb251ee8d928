package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"go.uber.org/zap"
)

// TypePhaseChanged 投递给下游通知 worker 的任务类型
const TypePhaseChanged = "campaign:phase_changed"

// LogHook 每次变更写一条结构化日志
type LogHook struct{}

func (LogHook) Name() string { return "log" }

func (LogHook) OnPhaseChange(_ context.Context, evt Event, campaign *model.CampaignModel) error {
	logger.With(
		zap.String("event_id", evt.EventId),
		zap.Int64("campaign_id", evt.CampaignId),
		zap.String("source", string(evt.Source)),
	).Info("Campaign %q phase changed %s -> %s", campaign.Name, evt.OldPhase, evt.NewPhase)
	return nil
}

// Invalidator 缓存失效接口，由 cache.CampaignCache 实现
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// CacheInvalidationHook 变更后删除活动缓存
type CacheInvalidationHook struct {
	Cache Invalidator
}

func (h CacheInvalidationHook) Name() string { return "cache" }

func (h CacheInvalidationHook) OnPhaseChange(ctx context.Context, evt Event, _ *model.CampaignModel) error {
	if h.Cache == nil {
		return nil
	}
	return h.Cache.Invalidate(ctx, evt.CampaignId)
}

// Enqueuer asynq 投递接口，*asynq.Client 满足
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PhaseChangedPayload 任务负载
type PhaseChangedPayload struct {
	Event
	CampaignName string `json:"campaign_name"`
	TokenSymbol  string `json:"token_symbol"`
}

// NewPhaseChangedTask 构造阶段变更任务
func NewPhaseChangedTask(evt Event, campaign *model.CampaignModel) (*asynq.Task, error) {
	body, err := json.Marshal(PhaseChangedPayload{
		Event:        evt,
		CampaignName: campaign.Name,
		TokenSymbol:  campaign.TokenSymbol,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePhaseChanged, body), nil
}

// QueueHook 把变更投递到 asynq，任务ID即事件ID，重复投递被队列去重
type QueueHook struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

func (h QueueHook) Name() string { return "queue" }

func (h QueueHook) OnPhaseChange(ctx context.Context, evt Event, campaign *model.CampaignModel) error {
	task, err := NewPhaseChangedTask(evt, campaign)
	if err != nil {
		return fmt.Errorf("failed to build task: %w", err)
	}

	opts := []asynq.Option{asynq.TaskID(evt.EventId)}
	if h.Queue != "" {
		opts = append(opts, asynq.Queue(h.Queue))
	}
	if h.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(h.MaxRetry))
	}
	if h.Retention > 0 {
		opts = append(opts, asynq.Retention(h.Retention))
	}

	if _, err := h.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue %s: %w", TypePhaseChanged, err)
	}
	return nil
}

// LifecycleHook 链上生命周期触发的扩展点，目前只记录需要人工处理的阶段
type LifecycleHook struct{}

func (LifecycleHook) Name() string { return "lifecycle" }

func (LifecycleHook) OnPhaseChange(_ context.Context, evt Event, _ *model.CampaignModel) error {
	switch evt.NewPhase {
	case phase.PhaseProcessing, phase.PhaseClaimable:
		logger.Info("Campaign %d entered %s, on-chain lifecycle action is handled externally", evt.CampaignId, evt.NewPhase)
	}
	return nil
}
