package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/api"
	"github.com/CreateIntelligens/banana-art/internal/config"
	"github.com/CreateIntelligens/banana-art/internal/llm"
	"github.com/CreateIntelligens/banana-art/internal/model"
	"github.com/CreateIntelligens/banana-art/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	adapter, err := llm.NewGeminiAdapter(cfg)
	var modelAdapter llm.Adapter = adapter
	if err != nil {
		// 没配 API Key 时仍然提供上传和历史查询，只是生成任务会直接失败
		logrus.WithError(err).Warn("gemini adapter unavailable, generation requests will fail")
		modelAdapter = llm.NewDisabledAdapter()
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, modelAdapter)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", httpHandler.AuthStatus)
	authGroup.POST("/login", httpHandler.Login)

	apiGroup.POST("/client-log", httpHandler.ClientLog)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())

	protected.POST("/images", httpHandler.UploadImage)
	protected.GET("/images", httpHandler.ListImages)
	protected.GET("/images/:id", httpHandler.GetImage)
	protected.DELETE("/images/:id", httpHandler.DeleteImage)

	protected.POST("/templates", httpHandler.CreateTemplate)
	protected.GET("/templates", httpHandler.ListTemplates)
	protected.GET("/templates/:id", httpHandler.GetTemplate)
	protected.PATCH("/templates/:id", httpHandler.UpdateTemplate)
	protected.DELETE("/templates/:id", httpHandler.DeleteTemplate)

	protected.POST("/generations", httpHandler.CreateGeneration)
	protected.GET("/generations", httpHandler.ListGenerations)
	protected.GET("/generations/:id", httpHandler.GetGeneration)
	protected.DELETE("/generations/:id", httpHandler.DeleteGeneration)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
