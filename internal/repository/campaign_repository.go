package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCampaignNotFound 活动不存在
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrCampaignArchived 活动已归档，拒绝写入
	ErrCampaignArchived = errors.New("campaign is archived")
	// ErrPersistenceConflict 并发写冲突，调用方需重新读取后重试
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// CampaignRepository 活动持久化
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository 创建活动仓储
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// PoolObservation 一次链上读取结果
type PoolObservation struct {
	TotalRaised      decimal.Decimal
	ParticipantCount int64
}

// StatsUpdate 统计写入结果
type StatsUpdate struct {
	Previous  decimal.Decimal // 写入前缓存值
	Persisted decimal.Decimal // 实际写入值
}

// Create 创建活动，由外部审批流程调用
func (r *CampaignRepository) Create(ctx context.Context, c *model.CampaignModel) error {
	if c.CurrentPhase == "" {
		c.CurrentPhase = phase.PhaseUpcoming
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// Get 按ID读取
func (r *CampaignRepository) Get(ctx context.Context, id int64) (*model.CampaignModel, error) {
	var c model.CampaignModel
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign %d: %w", id, err)
	}
	return &c, nil
}

// notOverridden 覆盖为空或不是合法阶段，与引擎忽略非法覆盖值保持一致
const notOverridden = "(phase_override IS NULL OR phase_override NOT IN ?)"

// ListAutoTransition 需要定时推导阶段的活动：未覆盖且未归档
func (r *CampaignRepository) ListAutoTransition(ctx context.Context) ([]model.CampaignModel, error) {
	var campaigns []model.CampaignModel
	err := r.db.WithContext(ctx).
		Where(notOverridden+" AND archived_at IS NULL", phase.All()).
		Order("id").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for transition: %w", err)
	}
	return campaigns, nil
}

// ListFundingRelevant 已部署且处于募资相关阶段的活动
func (r *CampaignRepository) ListFundingRelevant(ctx context.Context) ([]model.CampaignModel, error) {
	var campaigns []model.CampaignModel
	err := r.db.WithContext(ctx).
		Where("contract_address IS NOT NULL AND contract_address <> '' AND chain_id IS NOT NULL").
		Where("archived_at IS NULL AND current_phase IN ?", phase.FundingPhases()).
		Order("id").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for sync: %w", err)
	}
	return campaigns, nil
}

// TransitionPhase 以 (current_phase, 未覆盖) 做 CAS 写入新阶段，进入 Ended 时归档。
// 只写调度器拥有的列，不触碰 updated_at。
func (r *CampaignRepository) TransitionPhase(ctx context.Context, id int64, from, to phase.Phase, at time.Time) error {
	updates := map[string]interface{}{
		"current_phase":    to,
		"phase_updated_at": at,
	}
	if to == phase.PhaseEnded {
		updates["archived_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&model.CampaignModel{}).
		Where("id = ? AND current_phase = ? AND archived_at IS NULL", id, from).
		Where(notOverridden, phase.All()).
		UpdateColumns(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to transition campaign %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("campaign %d phase %s -> %s: %w", id, from, to, ErrPersistenceConflict)
	}
	return nil
}

// ApplyPoolStats 原子写入链上统计：raised 取最大值，三列同时写入
func (r *CampaignRepository) ApplyPoolStats(ctx context.Context, id int64, obs PoolObservation, at time.Time) (*StatsUpdate, error) {
	var update StatsUpdate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Archived() {
			return ErrCampaignArchived
		}

		raised := decimal.Max(c.RaisedAmount, obs.TotalRaised)
		update = StatsUpdate{Previous: c.RaisedAmount, Persisted: raised}

		return tx.Model(&model.CampaignModel{}).
			Where("id = ?", id).
			UpdateColumns(map[string]interface{}{
				"raised_amount":     raised,
				"participant_count": obs.ParticipantCount,
				"last_synced_at":    at,
			}).Error
	})
	if err != nil {
		return nil, wrapTx(id, "apply pool stats", err)
	}
	return &update, nil
}

// CorrectRaisedAmount 管理员修正募资金额，唯一允许 raised 下降的路径
func (r *CampaignRepository) CorrectRaisedAmount(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var previous decimal.Decimal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Archived() {
			return ErrCampaignArchived
		}
		previous = c.RaisedAmount

		return tx.Model(&model.CampaignModel{}).
			Where("id = ?", id).
			UpdateColumn("raised_amount", amount).Error
	})
	if err != nil {
		return decimal.Zero, wrapTx(id, "correct raised amount", err)
	}
	return previous, nil
}

// SetOverride 写入管理员覆盖阶段，并立即同步 current_phase，返回原阶段。
// 覆盖为 Ended 不归档，清除覆盖后仍由调度器推导。
func (r *CampaignRepository) SetOverride(ctx context.Context, id int64, p phase.Phase, at time.Time) (*model.CampaignModel, phase.Phase, error) {
	if !p.Valid() {
		return nil, "", fmt.Errorf("%w: %q", phase.ErrUnknownPhase, p)
	}

	var (
		old     phase.Phase
		updated model.CampaignModel
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Archived() {
			return ErrCampaignArchived
		}
		old = c.CurrentPhase

		updates := map[string]interface{}{
			"phase_override": p,
			"current_phase":  p,
		}
		if old != p {
			updates["phase_updated_at"] = at
		}
		if err := tx.Model(&model.CampaignModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		return nil, "", wrapTx(id, "set override", err)
	}
	return &updated, old, nil
}

// ClearOverride 清除覆盖，current_phase 由下一次调度重新推导
func (r *CampaignRepository) ClearOverride(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Archived() {
			return ErrCampaignArchived
		}
		return tx.Model(&model.CampaignModel{}).
			Where("id = ?", id).
			Update("phase_override", gorm.Expr("NULL")).Error
	})
	if err != nil {
		return wrapTx(id, "clear override", err)
	}
	return nil
}

// UpdateSchedule 写入时间锚点，调用方负责校验顺序
func (r *CampaignRepository) UpdateSchedule(ctx context.Context, id int64, s phase.Schedule) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Archived() || (c.Overridden() && *c.PhaseOverride == phase.PhaseEnded) {
			return ErrCampaignArchived
		}
		return tx.Model(&model.CampaignModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"whitelist_start": s.WhitelistStart,
				"whitelist_end":   s.WhitelistEnd,
				"sale_start":      s.SaleStart,
				"sale_end":        s.SaleEnd,
				"claim_start":     s.ClaimStart,
				"listing_date":    s.ListingDate,
			}).Error
	})
	if err != nil {
		return wrapTx(id, "update schedule", err)
	}
	return nil
}

func lockCampaign(tx *gorm.DB, id int64) (*model.CampaignModel, error) {
	var c model.CampaignModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

func wrapTx(id int64, op string, err error) error {
	if errors.Is(err, ErrCampaignNotFound) || errors.Is(err, ErrCampaignArchived) {
		return err
	}
	return fmt.Errorf("failed to %s for campaign %d: %w", op, id, err)
}
