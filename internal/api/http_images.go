package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"github.com/CreateIntelligens/banana-art/internal/storage"
	"github.com/CreateIntelligens/banana-art/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 上传图片大小上限 20MB
const maxUploadBytes = 20 << 20

// UploadImage 接收 multipart 上传，存入存储后登记数据库记录。
func (h *HTTPHandler) UploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		MissingField(c, "file")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		BadRequest(c, ErrCodeInvalidRequest, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		logrus.WithError(err).Error("failed to open uploaded file")
		InternalError(c, "failed to read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		logrus.WithError(err).Error("failed to read uploaded file")
		InternalError(c, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "uploaded file is empty")
		return
	}
	if len(data) > maxUploadBytes {
		BadRequest(c, ErrCodeInvalidRequest, "file too large")
		return
	}

	ext := utils.ExtensionFromFilename(fileHeader.Filename)
	if ext == "" {
		ext = utils.ExtensionFromMime(utils.DetectImageMime(data))
	}
	if ext == "" {
		ext = "png"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	storedPath, err := h.storage.Save(ctx, data, storage.SaveOptions{
		Category:  "uploads",
		Extension: ext,
		BaseName:  uuid.NewString(),
	})
	if err != nil {
		logrus.WithError(err).Error("failed to store uploaded image")
		InternalError(c, "failed to store uploaded image")
		return
	}

	record := &entity.DbImage{
		Filename:   strings.TrimSpace(fileHeader.Filename),
		StoredPath: storedPath,
	}
	if err := h.repo.CreateImage(ctx, record); err != nil {
		logrus.WithError(err).Error("failed to create image record")
		// 落库失败时回收已写入的文件
		if delErr := h.storage.Delete(ctx, storedPath); delErr != nil {
			logrus.WithError(delErr).WithField("path", storedPath).Warn("failed to clean up stored file")
		}
		InternalError(c, "failed to create image record")
		return
	}

	c.JSON(http.StatusCreated, h.makeImageItem(*record))
}

// ListImages 按上传时间倒序分页列出图片。
func (h *HTTPHandler) ListImages(c *gin.Context) {
	var query entity.ImageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, meta, err := h.repo.ListImages(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list images")
		InternalError(c, "failed to list images")
		return
	}

	items := make([]entity.ImageItem, 0, len(records))
	for _, record := range records {
		items = append(items, h.makeImageItem(record))
	}

	c.JSON(http.StatusOK, entity.ImageListResponse{Images: items, Meta: meta})
}

// GetImage 读取单条图片记录。
func (h *HTTPHandler) GetImage(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	record, err := h.repo.GetImage(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "image not found")
			return
		}
		logrus.WithError(err).WithField("image_id", id).Error("failed to load image")
		InternalError(c, "failed to load image")
		return
	}

	c.JSON(http.StatusOK, h.makeImageItem(*record))
}

// DeleteImage 删除图片记录和底层文件。历史生成记录里的引用保持原样，
// 不做回写。
func (h *HTTPHandler) DeleteImage(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	record, err := h.repo.GetImage(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "image not found")
			return
		}
		logrus.WithError(err).WithField("image_id", id).Error("failed to load image")
		InternalError(c, "failed to load image")
		return
	}

	if err := h.repo.DeleteImage(ctx, id); err != nil {
		logrus.WithError(err).WithField("image_id", id).Error("failed to delete image record")
		InternalError(c, "failed to delete image")
		return
	}

	if record.StoredPath != "" {
		if err := h.storage.Delete(ctx, record.StoredPath); err != nil {
			logrus.WithError(err).WithField("path", record.StoredPath).Warn("failed to remove stored file")
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) makeImageItem(record entity.DbImage) entity.ImageItem {
	return entity.ImageItem{
		ID:        record.ID,
		Filename:  record.Filename,
		Path:      record.StoredPath,
		URL:       h.publicURL(record.StoredPath),
		CreatedAt: record.CreatedAt,
	}
}

// parseIDParam 解析路径里的资源 ID，非法时直接写 400 响应。
func parseIDParam(c *gin.Context) (uint, bool) {
	rawID := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}
