package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/config"
	"schoolPrint/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载通用中间件、健康检查与 /metrics。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if cfg != nil && cfg.API.GinMode != "" {
		gin.SetMode(cfg.API.GinMode)
	}

	router := gin.New()
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
		gin.Recovery(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
