package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ihrahat0/whalespad-sub001/internal/handler"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/logic"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
)

// Setup 注册路由。管理端鉴权由网关负责，这里不做校验。
func Setup(campaignLogic *logic.CampaignLogic, health *handler.HealthHandler, m *metrics.Metrics) *gin.Engine {
	if err := handler.RegisterValidators(); err != nil {
		logger.Fatal("Failed to register validators: %v", err)
	}

	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查与指标
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		campaignHandler := handler.NewCampaignHandler(campaignLogic)

		campaigns := v1.Group("/campaigns")
		{
			campaigns.GET("/:id", campaignHandler.GetCampaign)
			campaigns.GET("/:id/notifications", campaignHandler.GetNotifications)
		}

		admin := v1.Group("/admin/campaigns")
		{
			admin.PUT("/:id/override", campaignHandler.SetOverride)
			admin.DELETE("/:id/override", campaignHandler.ClearOverride)
			admin.PUT("/:id/schedule", campaignHandler.UpdateSchedule)
			admin.PUT("/:id/raised-amount", campaignHandler.CorrectRaisedAmount)
		}
	}

	return r
}

// requestLogger 请求日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
