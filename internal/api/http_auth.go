package api

import (
	"net/http"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type authStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// AuthStatus 告知前端鉴权是否开启，未开启时前端跳过登录流程。
func (h *HTTPHandler) AuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, authStatusResponse{Enabled: h.AuthEnabled()})
}

// Login 校验管理员口令并签发 JWT
func (h *HTTPHandler) Login(c *gin.Context) {
	if !h.AuthEnabled() {
		BadRequest(c, ErrCodeInvalidRequest, "认证未启用")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if req.Password == "" {
		MissingField(c, "password")
		return
	}

	if !auth.VerifyPassword(h.adminPasswordHash, req.Password) {
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "口令错误")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken()
	if err != nil {
		logrus.WithError(err).Error("failed to generate jwt token")
		InternalError(c, "签发 Token 失败")
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
