package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/cache"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/notifier"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount 修正金额非法
var ErrInvalidAmount = errors.New("raised amount must be a non-negative integer")

// MaxPageSize 分页上限
const MaxPageSize = 100

// Notifier 阶段变更通知，由 notifier.Notifier 实现
type Notifier interface {
	OnTransition(ctx context.Context, campaign *model.CampaignModel, oldPhase, newPhase phase.Phase, source model.NotificationSource, at time.Time) (notifier.Event, []error)
}

// CampaignView 活动读取视图，阶段每次读取时重新计算
type CampaignView struct {
	Id               int64              `json:"id"`
	Name             string             `json:"name"`
	TokenSymbol      string             `json:"tokenSymbol"`
	Phases           []phase.PhaseState `json:"phases"`
	ActivePhase      phase.PhaseState   `json:"activePhase"`
	PhaseOverride    *phase.Phase       `json:"phaseOverride"`
	CountdownTarget  time.Time          `json:"countdownTarget"`
	Countdown        phase.Countdown    `json:"countdown"`
	RaisedAmount     decimal.Decimal    `json:"raisedAmount"`
	HardCap          decimal.Decimal    `json:"hardCap"`
	ParticipantCount int64              `json:"participantCount"`
	ProgressPercent  float64            `json:"progressPercent"`
	LastSyncedAt     *time.Time         `json:"lastSyncedAt"`
	ContractAddress  *string            `json:"contractAddress"`
	ChainId          *int64             `json:"chainId"`
	Archived         bool               `json:"archived"`
}

// CampaignLogic 活动业务逻辑
type CampaignLogic struct {
	campaigns     *repository.CampaignRepository
	notifications *repository.NotificationRepository
	engine        *phase.Engine
	notifier      Notifier
	cache         *cache.CampaignCache
	clock         clockwork.Clock
}

// NewCampaignLogic 创建活动业务逻辑，cache 可为空
func NewCampaignLogic(
	campaigns *repository.CampaignRepository,
	notifications *repository.NotificationRepository,
	engine *phase.Engine,
	n Notifier,
	c *cache.CampaignCache,
	clock clockwork.Clock,
) *CampaignLogic {
	return &CampaignLogic{
		campaigns:     campaigns,
		notifications: notifications,
		engine:        engine,
		notifier:      n,
		cache:         c,
		clock:         clock,
	}
}

// Now 当前时间
func (l *CampaignLogic) Now() time.Time {
	return l.clock.Now()
}

// GetCampaignView 获取活动视图，不等待任何后台任务
func (l *CampaignLogic) GetCampaignView(ctx context.Context, id int64, now time.Time) (*CampaignView, error) {
	campaign, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.buildView(campaign, now)
}

// SetOverride 设置管理员覆盖阶段，阶段变化时立即通知
func (l *CampaignLogic) SetOverride(ctx context.Context, id int64, p phase.Phase) (*CampaignView, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", phase.ErrUnknownPhase, p)
	}

	now := l.clock.Now()
	updated, old, err := l.campaigns.SetOverride(ctx, id, p, now)
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, id)

	logger.Info("Campaign %d phase overridden to %s (was %s)", id, p, old)
	if old != p {
		l.notifier.OnTransition(ctx, updated, old, p, model.NotificationSourceOverride, now)
	}
	return l.buildView(updated, now)
}

// ClearOverride 清除覆盖，阶段恢复为按时间推导
func (l *CampaignLogic) ClearOverride(ctx context.Context, id int64) (*CampaignView, error) {
	if err := l.campaigns.ClearOverride(ctx, id); err != nil {
		return nil, err
	}
	l.invalidate(ctx, id)
	logger.Info("Campaign %d phase override cleared", id)
	return l.GetCampaignView(ctx, id, l.clock.Now())
}

// UpdateSchedule 更新时间锚点，按补全默认值后的顺序校验
func (l *CampaignLogic) UpdateSchedule(ctx context.Context, id int64, s phase.Schedule) (*CampaignView, error) {
	if err := phase.ValidateSchedule(s, l.engine.Offsets()); err != nil {
		return nil, err
	}
	if err := l.campaigns.UpdateSchedule(ctx, id, s); err != nil {
		return nil, err
	}
	l.invalidate(ctx, id)
	logger.Info("Campaign %d schedule updated", id)
	return l.GetCampaignView(ctx, id, l.clock.Now())
}

// CorrectRaisedAmount 管理员修正募资金额，返回修正前的值
func (l *CampaignLogic) CorrectRaisedAmount(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	previous, err := l.campaigns.CorrectRaisedAmount(ctx, id, amount)
	if err != nil {
		return decimal.Zero, err
	}
	l.invalidate(ctx, id)
	logger.Warn("Campaign %d raised amount corrected from %s to %s", id, previous, amount)
	return previous, nil
}

// ListNotifications 分页获取阶段变更历史
func (l *CampaignLogic) ListNotifications(ctx context.Context, id int64, page, pageSize int) ([]model.PhaseNotificationModel, int64, error) {
	if _, err := l.load(ctx, id); err != nil {
		return nil, 0, err
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return l.notifications.ListByCampaign(ctx, id, page, pageSize)
}

func (l *CampaignLogic) load(ctx context.Context, id int64) (*model.CampaignModel, error) {
	if campaign, ok := l.cache.Get(ctx, id); ok {
		return campaign, nil
	}
	// 先取代数再回源，回源期间发生的写入会让回填失效
	gen, fill := l.cache.Generation(ctx, id)
	campaign, err := l.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if fill {
		l.cache.Set(ctx, campaign, gen)
	}
	return campaign, nil
}

func (l *CampaignLogic) invalidate(ctx context.Context, id int64) {
	if err := l.cache.Invalidate(ctx, id); err != nil {
		logger.Warn("%v", err)
	}
}

func (l *CampaignLogic) buildView(c *model.CampaignModel, now time.Time) (*CampaignView, error) {
	phases, err := l.engine.ComputePhases(c.Schedule(), c.PhaseOverride, now)
	if err != nil {
		return nil, err
	}

	var saleEnd time.Time
	if c.SaleEnd != nil {
		saleEnd = *c.SaleEnd
	}
	target := phase.CountdownTarget(phases, saleEnd, now)
	return &CampaignView{
		Id:               c.Id,
		Name:             c.Name,
		TokenSymbol:      c.TokenSymbol,
		Phases:           phases,
		ActivePhase:      phase.ActivePhase(phases),
		PhaseOverride:    c.PhaseOverride,
		CountdownTarget:  target,
		Countdown:        phase.Remaining(target, now),
		RaisedAmount:     c.RaisedAmount,
		HardCap:          c.HardCap,
		ParticipantCount: c.ParticipantCount,
		ProgressPercent:  progress(c.RaisedAmount, c.HardCap),
		LastSyncedAt:     c.LastSyncedAt,
		ContractAddress:  c.ContractAddress,
		ChainId:          c.ChainId,
		Archived:         c.Archived(),
	}, nil
}

// progress 募资进度百分比，保留两位小数，超募时可大于100
func progress(raised, hardCap decimal.Decimal) float64 {
	if !hardCap.IsPositive() {
		return 0
	}
	return raised.Mul(decimal.NewFromInt(100)).Div(hardCap).Round(2).InexactFloat64()
}
