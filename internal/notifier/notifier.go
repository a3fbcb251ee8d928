package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"gorm.io/datatypes"
)

// Event 一次阶段变更
type Event struct {
	EventId    string                   `json:"event_id"`
	CampaignId int64                    `json:"campaign_id"`
	OldPhase   phase.Phase              `json:"old_phase"`
	NewPhase   phase.Phase              `json:"new_phase"`
	Source     model.NotificationSource `json:"source"`
	At         time.Time                `json:"at"`
}

// PhaseHook 阶段变更订阅者
type PhaseHook interface {
	Name() string
	OnPhaseChange(ctx context.Context, evt Event, campaign *model.CampaignModel) error
}

// Store 通知记录持久化
type Store interface {
	Create(ctx context.Context, n *model.PhaseNotificationModel) error
}

// NotificationDeliveryError 通知失败，只记录不向调用方传播
type NotificationDeliveryError struct {
	Stage      string // persist 或 hook 名称
	EventId    string
	CampaignId int64
	Err        error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("notification %s for campaign %d failed at %s: %v", e.EventId, e.CampaignId, e.Stage, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error {
	return e.Err
}

// Notifier 阶段变更通知器
type Notifier struct {
	store   Store
	hooks   []PhaseHook
	metrics *metrics.Metrics
	newId   func() string
}

// New 创建通知器，hooks 按注册顺序执行
func New(store Store, m *metrics.Metrics, hooks ...PhaseHook) *Notifier {
	return &Notifier{
		store:   store,
		hooks:   hooks,
		metrics: m,
		newId:   func() string { return uuid.NewString() },
	}
}

// Register 追加订阅者，须在调度启动前调用
func (n *Notifier) Register(hook PhaseHook) {
	n.hooks = append(n.hooks, hook)
}

// OnTransition 记录并分发阶段变更。所有失败都在此处吞掉，返回本次产生的错误供日志和测试使用。
func (n *Notifier) OnTransition(ctx context.Context, campaign *model.CampaignModel, oldPhase, newPhase phase.Phase, source model.NotificationSource, at time.Time) (Event, []error) {
	evt := Event{
		EventId:    n.newId(),
		CampaignId: campaign.Id,
		OldPhase:   oldPhase,
		NewPhase:   newPhase,
		Source:     source,
		At:         at,
	}
	n.metrics.Transition(string(source), string(oldPhase), string(newPhase))

	var errs []error
	if err := n.persist(ctx, evt, campaign); err != nil {
		errs = append(errs, n.fail("persist", evt, err))
	}
	for _, hook := range n.hooks {
		if err := runHook(ctx, hook, evt, campaign); err != nil {
			errs = append(errs, n.fail(hook.Name(), evt, err))
		}
	}
	return evt, errs
}

func (n *Notifier) persist(ctx context.Context, evt Event, campaign *model.CampaignModel) error {
	if n.store == nil {
		return nil
	}
	payload, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode campaign snapshot: %w", err)
	}
	return n.store.Create(ctx, &model.PhaseNotificationModel{
		EventId:    evt.EventId,
		CampaignId: evt.CampaignId,
		OldPhase:   evt.OldPhase,
		NewPhase:   evt.NewPhase,
		Source:     evt.Source,
		At:         evt.At,
		Payload:    datatypes.JSON(payload),
	})
}

func (n *Notifier) fail(stage string, evt Event, err error) error {
	deliveryErr := &NotificationDeliveryError{Stage: stage, EventId: evt.EventId, CampaignId: evt.CampaignId, Err: err}
	logger.Error("%v", deliveryErr)
	n.metrics.NotifierFailure(stage)
	return deliveryErr
}

func runHook(ctx context.Context, hook PhaseHook, evt Event, campaign *model.CampaignModel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook.OnPhaseChange(ctx, evt, campaign)
}
