package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/logic"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// ErrorFromErr 按错误类型映射状态码
func ErrorFromErr(c *gin.Context, err error) {
	var invalid *phase.InvalidScheduleError
	switch {
	case errors.Is(err, repository.ErrCampaignNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrCampaignArchived):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, phase.ErrUnknownPhase), errors.Is(err, logic.ErrInvalidAmount):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		ErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
