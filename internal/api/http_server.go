package api

import (
	"strings"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/auth"
	"github.com/CreateIntelligens/banana-art/internal/config"
	"github.com/CreateIntelligens/banana-art/internal/llm"
	"github.com/CreateIntelligens/banana-art/internal/model"
	"github.com/CreateIntelligens/banana-art/internal/service"
	"github.com/CreateIntelligens/banana-art/internal/storage"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string

	authManager       *auth.Manager
	adminPasswordHash string

	// 服务层
	generationService *service.GenerationService
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, adapter llm.Adapter) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	// 管理员口令只在内存里保留哈希
	adminPasswordHash := ""
	if strings.TrimSpace(cfg.AdminPassword) != "" {
		adminPasswordHash, err = auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
	}

	timeout := time.Duration(cfg.GenerationTimeoutMinutes) * time.Minute
	generationSvc := service.NewGenerationService(repo, store, adapter, timeout)

	handler := &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		adminPasswordHash: adminPasswordHash,
		generationService: generationSvc,
	}

	return handler, nil
}

// AuthEnabled 是否启用了管理员鉴权。
func (h *HTTPHandler) AuthEnabled() bool {
	return h.adminPasswordHash != ""
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// publicURL 把存储相对路径拼成可访问的 URL。
func (h *HTTPHandler) publicURL(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	base := h.storagePublicBase
	if base == "" {
		base = "/files"
	}
	return base + "/" + strings.TrimLeft(trimmed, "/")
}
