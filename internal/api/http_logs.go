package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type clientLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Context any    `json:"context"`
}

// ClientLog 把前端日志转发到服务端日志流，方便排查浏览器侧的问题。
func (h *HTTPHandler) ClientLog(c *gin.Context) {
	var req clientLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		MissingField(c, "message")
		return
	}

	entry := logrus.WithFields(logrus.Fields{
		"source":  "client",
		"context": req.Context,
	})

	switch strings.ToLower(strings.TrimSpace(req.Level)) {
	case "error":
		entry.Error(req.Message)
	case "warn", "warning":
		entry.Warn(req.Message)
	case "debug":
		entry.Debug(req.Message)
	default:
		entry.Info(req.Message)
	}

	c.Status(http.StatusNoContent)
}
