package repository

import (
	"context"
	"fmt"

	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 阶段变更记录
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 写入一条变更记录
func (r *NotificationRepository) Create(ctx context.Context, n *model.PhaseNotificationModel) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create phase notification: %w", err)
	}
	return nil
}

// ListByCampaign 分页获取某活动的变更记录，按时间倒序
func (r *NotificationRepository) ListByCampaign(ctx context.Context, campaignId int64, page, pageSize int) ([]model.PhaseNotificationModel, int64, error) {
	var (
		notifications []model.PhaseNotificationModel
		total         int64
	)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&model.PhaseNotificationModel{}).Where("campaign_id = ?", campaignId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count phase notifications: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list phase notifications: %w", err)
	}
	return notifications, total, nil
}
