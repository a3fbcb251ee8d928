package handler

import (
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// 管理端请求模型

// OverrideRequest 设置覆盖阶段
type OverrideRequest struct {
	Phase string `json:"phase" binding:"required,phase"`
}

// ScheduleRequest 更新时间锚点，saleStart/saleEnd 必填
type ScheduleRequest struct {
	WhitelistStart *time.Time `json:"whitelistStart"`
	WhitelistEnd   *time.Time `json:"whitelistEnd"`
	SaleStart      *time.Time `json:"saleStart" binding:"required"`
	SaleEnd        *time.Time `json:"saleEnd" binding:"required"`
	ClaimStart     *time.Time `json:"claimStart"`
	ListingDate    *time.Time `json:"listingDate"`
}

// Schedule 转换为阶段时间表
func (r ScheduleRequest) Schedule() phase.Schedule {
	return phase.Schedule{
		WhitelistStart: r.WhitelistStart,
		WhitelistEnd:   r.WhitelistEnd,
		SaleStart:      r.SaleStart,
		SaleEnd:        r.SaleEnd,
		ClaimStart:     r.ClaimStart,
		ListingDate:    r.ListingDate,
	}
}

// RaisedAmountRequest 修正募资金额，单位 wei，十进制字符串
type RaisedAmountRequest struct {
	Amount string `json:"amount" binding:"required,numeric"`
}

// RaisedAmountResponse 修正结果
type RaisedAmountResponse struct {
	CampaignId int64  `json:"campaignId"`
	Previous   string `json:"previous"`
	Current    string `json:"current"`
}

// NotificationResponse 阶段变更记录
type NotificationResponse struct {
	EventId  string      `json:"eventId"`
	OldPhase phase.Phase `json:"oldPhase"`
	NewPhase phase.Phase `json:"newPhase"`
	Source   string      `json:"source"`
	At       time.Time   `json:"at"`
}

// GetNotificationsResponse 阶段变更历史
type GetNotificationsResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Pagination    Pagination             `json:"pagination"`
}

// 转换函数

// ToNotificationResponse 将变更记录转换为响应模型
func ToNotificationResponse(n *model.PhaseNotificationModel) NotificationResponse {
	return NotificationResponse{
		EventId:  n.EventId,
		OldPhase: n.OldPhase,
		NewPhase: n.NewPhase,
		Source:   string(n.Source),
		At:       n.At,
	}
}

// ToNotificationResponseList 将变更记录列表转换为响应模型列表
func ToNotificationResponseList(list []model.PhaseNotificationModel) []NotificationResponse {
	result := make([]NotificationResponse, len(list))
	for i := range list {
		result[i] = ToNotificationResponse(&list[i])
	}
	return result
}

// NewPagination 计算分页信息
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPage := int64(0)
	if pageSize > 0 {
		totalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPage: totalPage}
}
