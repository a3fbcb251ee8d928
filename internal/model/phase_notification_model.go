package model

import (
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"gorm.io/datatypes"
)

// NotificationSource 阶段变更来源
type NotificationSource string

const (
	NotificationSourceScheduler NotificationSource = "scheduler" // 定时任务推导
	NotificationSourceOverride  NotificationSource = "override"  // 管理员覆盖
)

// PhaseNotificationModel 阶段变更记录
type PhaseNotificationModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	EventId    string             `json:"event_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	CampaignId int64              `json:"campaign_id" gorm:"not null;index"`
	OldPhase   phase.Phase        `json:"old_phase" gorm:"type:varchar(16);not null"`
	NewPhase   phase.Phase        `json:"new_phase" gorm:"type:varchar(16);not null"`
	Source     NotificationSource `json:"source" gorm:"type:varchar(16);not null"`
	At         time.Time          `json:"at" gorm:"not null"`
	Payload    datatypes.JSON     `json:"payload"` // 变更时刻的活动快照
}

// TableName 自定义表名
func (PhaseNotificationModel) TableName() string {
	return "phase_notification"
}
