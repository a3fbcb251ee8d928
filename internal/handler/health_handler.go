package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ihrahat0/whalespad-sub001/internal/database"
	"gorm.io/gorm"
)

// ChainHealth 由 chain.Manager 实现
type ChainHealth interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

type HealthHandler struct {
	db     *gorm.DB
	chains ChainHealth
}

func NewHealthHandler(db *gorm.DB, chains ChainHealth) *HealthHandler {
	return &HealthHandler{db: db, chains: chains}
}

// Health 健康检查，数据库不可用时返回 503，链不可用只在详情中体现
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "ok",
		"service": "ido-lifecycle-service",
	}

	if err := database.Ping(c.Request.Context(), h.db); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}
	if h.chains != nil {
		body["chain"] = h.chains.GetHealthStatus(c.Request.Context())
	}

	c.JSON(status, body)
}
