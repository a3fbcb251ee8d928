package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ihrahat0/whalespad-sub001/internal/logic"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/shopspring/decimal"
)

type CampaignHandler struct {
	campaignLogic *logic.CampaignLogic
}

func NewCampaignHandler(campaignLogic *logic.CampaignLogic) *CampaignHandler {
	return &CampaignHandler{
		campaignLogic: campaignLogic,
	}
}

// GetCampaign 获取活动视图
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}

	view, err := h.campaignLogic.GetCampaignView(c.Request.Context(), id, h.campaignLogic.Now())
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取活动成功", view)
}

// GetNotifications 获取阶段变更历史
func (h *CampaignHandler) GetNotifications(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > logic.MaxPageSize {
		pageSize = logic.MaxPageSize
	}

	list, total, err := h.campaignLogic.ListNotifications(c.Request.Context(), id, page, pageSize)
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取阶段记录成功", GetNotificationsResponse{
		Notifications: ToNotificationResponseList(list),
		Pagination:    NewPagination(page, pageSize, total),
	})
}

// SetOverride 设置覆盖阶段
func (h *CampaignHandler) SetOverride(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := phase.ParsePhase(req.Phase)
	if err != nil {
		ErrorFromErr(c, err)
		return
	}

	view, err := h.campaignLogic.SetOverride(c.Request.Context(), id, p)
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "覆盖阶段已设置", view)
}

// ClearOverride 清除覆盖阶段
func (h *CampaignHandler) ClearOverride(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}

	view, err := h.campaignLogic.ClearOverride(c.Request.Context(), id)
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "覆盖阶段已清除", view)
}

// UpdateSchedule 更新时间锚点
func (h *CampaignHandler) UpdateSchedule(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.campaignLogic.UpdateSchedule(c.Request.Context(), id, req.Schedule())
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "时间表已更新", view)
}

// CorrectRaisedAmount 修正募资金额
func (h *CampaignHandler) CorrectRaisedAmount(c *gin.Context) {
	id, ok := parseId(c)
	if !ok {
		return
	}

	var req RaisedAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的金额")
		return
	}

	previous, err := h.campaignLogic.CorrectRaisedAmount(c.Request.Context(), id, amount)
	if err != nil {
		ErrorFromErr(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "募资金额已修正", RaisedAmountResponse{
		CampaignId: id,
		Previous:   previous.String(),
		Current:    amount.String(),
	})
}

func parseId(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "无效的活动ID")
		return 0, false
	}
	return id, true
}
