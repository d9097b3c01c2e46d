package api

import (
	"log/slog"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"schoolPrint/internal/api/middleware"
	"schoolPrint/internal/auth"
	"schoolPrint/internal/config"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	store *records.Store,
	engine *render.Engine,
	authService *auth.AuthService,
	redisClient *redis.Client,
	storageClient *storage.Client,
	renderCfg config.RenderConfig,
	clamdAddr string,
	logger *slog.Logger,
) {
	var counter redisRateCounter
	if redisClient != nil {
		counter = redisClient
	}
	limiter := NewRenderLimiter(counter, renderCfg.RateLimitPerMinute)

	documentHandler := NewDocumentHandler(store, engine, limiter)
	templateHandler := NewTemplateHandler(store)
	var scanner uploadScanner
	if clamdAddr != "" {
		scanner = clamd.NewClamd(clamdAddr)
	}
	assetHandler := NewAssetHandler(storageClient, store, scanner, logger)
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	v1.Use(authMiddleware)
	{
		documentGroup := v1.Group("/documents")
		{
			documentGroup.GET("", documentHandler.ListKinds)
			documentGroup.GET("/:kind", documentHandler.RenderDocument)
		}

		templateGroup := v1.Group("/templates")
		{
			templateGroup.GET("/:kind", templateHandler.GetTemplate)
			templateGroup.PUT("/:kind", templateHandler.PutTemplate)
		}

		assetGroup := v1.Group("/assets")
		{
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.DELETE("", assetHandler.DeleteAsset)
		}
	}
}
