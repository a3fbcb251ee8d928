package model

import (
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/shopspring/decimal"
)

// CampaignModel IDO活动
type CampaignModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Name        string `json:"name" gorm:"not null"`
	TokenSymbol string `json:"token_symbol"`

	// 时间锚点，SaleStart/SaleEnd 为空属于数据错误
	WhitelistStart *time.Time `json:"whitelist_start"`
	WhitelistEnd   *time.Time `json:"whitelist_end"`
	SaleStart      *time.Time `json:"sale_start"`
	SaleEnd        *time.Time `json:"sale_end"`
	ClaimStart     *time.Time `json:"claim_start"`
	ListingDate    *time.Time `json:"listing_date"`

	// 阶段，PhaseOverride 非空时完全覆盖时间推导
	PhaseOverride  *phase.Phase `json:"phase_override" gorm:"type:varchar(16)"`
	CurrentPhase   phase.Phase  `json:"current_phase" gorm:"type:varchar(16);not null;default:'upcoming';index"`
	PhaseUpdatedAt *time.Time   `json:"phase_updated_at"`
	ArchivedAt     *time.Time   `json:"archived_at"` // 进入 Ended 后归档

	// 链上信息，未部署时为空
	ContractAddress *string `json:"contract_address" gorm:"type:varchar(42)"`
	ChainId         *int64  `json:"chain_id"`

	// 募资统计，单位为最小精度(wei)
	RaisedAmount     decimal.Decimal `json:"raised_amount" gorm:"type:numeric(78,0);not null;default:0"`
	HardCap          decimal.Decimal `json:"hard_cap" gorm:"type:numeric(78,0);not null;default:0"`
	ParticipantCount int64           `json:"participant_count" gorm:"not null;default:0"`
	LastSyncedAt     *time.Time      `json:"last_synced_at"`
}

// TableName 自定义表名
func (CampaignModel) TableName() string {
	return "campaign"
}

// Schedule 转换为阶段引擎的时间表
func (c *CampaignModel) Schedule() phase.Schedule {
	return phase.Schedule{
		WhitelistStart: c.WhitelistStart,
		WhitelistEnd:   c.WhitelistEnd,
		SaleStart:      c.SaleStart,
		SaleEnd:        c.SaleEnd,
		ClaimStart:     c.ClaimStart,
		ListingDate:    c.ListingDate,
	}
}

// ChainRef 返回链上募资池引用，未部署时 ok 为 false
func (c *CampaignModel) ChainRef() (address string, chainId int64, ok bool) {
	if c.ContractAddress == nil || *c.ContractAddress == "" || c.ChainId == nil {
		return "", 0, false
	}
	return *c.ContractAddress, *c.ChainId, true
}

// Overridden 是否设置了合法的覆盖阶段，非法的历史值视为未设置
func (c *CampaignModel) Overridden() bool {
	return c.PhaseOverride != nil && c.PhaseOverride.Valid()
}

// Archived 是否已归档
func (c *CampaignModel) Archived() bool {
	return c.ArchivedAt != nil
}
