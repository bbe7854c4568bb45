package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"github.com/CreateIntelligens/banana-art/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateTemplate 创建模板。引用的图片必须全部存在。
func (h *HTTPHandler) CreateTemplate(c *gin.Context) {
	var req entity.TemplateUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	replace, ok := h.validateTemplateRequest(c, req)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if !h.ensureTemplateImagesExist(c, ctx, replace.ImageIDs) {
		return
	}

	record := &entity.DbTemplate{
		Name:        replace.Name,
		Prompt:      replace.Prompt,
		ImageIDs:    replace.ImageIDs,
		AspectRatio: replace.AspectRatio,
	}
	if err := h.repo.CreateTemplate(ctx, record); err != nil {
		logrus.WithError(err).Error("failed to create template")
		InternalError(c, "failed to create template")
		return
	}

	c.JSON(http.StatusCreated, h.makeTemplateItem(*record))
}

// UpdateTemplate 整体替换模板内容，四个字段一次写入。
func (h *HTTPHandler) UpdateTemplate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req entity.TemplateUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	replace, ok := h.validateTemplateRequest(c, req)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if !h.ensureTemplateImagesExist(c, ctx, replace.ImageIDs) {
		return
	}

	if err := h.repo.ReplaceTemplate(ctx, id, replace); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorResponse(c, http.StatusNotFound, ErrCodeUnknownTemplate, "template not found")
			return
		}
		logrus.WithError(err).WithField("template_id", id).Error("failed to update template")
		InternalError(c, "failed to update template")
		return
	}

	updated, err := h.repo.GetTemplate(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("template_id", id).Error("failed to reload template")
		InternalError(c, "failed to load updated template")
		return
	}

	c.JSON(http.StatusOK, h.makeTemplateItem(*updated))
}

// GetTemplate 读取单个模板。
func (h *HTTPHandler) GetTemplate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	record, err := h.repo.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorResponse(c, http.StatusNotFound, ErrCodeUnknownTemplate, "template not found")
			return
		}
		logrus.WithError(err).WithField("template_id", id).Error("failed to load template")
		InternalError(c, "failed to load template")
		return
	}

	c.JSON(http.StatusOK, h.makeTemplateItem(*record))
}

// ListTemplates 列出全部模板，最近更新在前。
func (h *HTTPHandler) ListTemplates(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, err := h.repo.ListTemplates(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to list templates")
		InternalError(c, "failed to list templates")
		return
	}

	items := make([]entity.TemplateItem, 0, len(records))
	for _, record := range records {
		items = append(items, h.makeTemplateItem(record))
	}

	c.JSON(http.StatusOK, entity.TemplateListResponse{Templates: items})
}

// DeleteTemplate 删除模板。引用它的历史生成记录不受影响。
func (h *HTTPHandler) DeleteTemplate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorResponse(c, http.StatusNotFound, ErrCodeUnknownTemplate, "template not found")
			return
		}
		logrus.WithError(err).WithField("template_id", id).Error("failed to delete template")
		InternalError(c, "failed to delete template")
		return
	}

	c.Status(http.StatusNoContent)
}

// validateTemplateRequest 校验并规范化模板请求字段。
func (h *HTTPHandler) validateTemplateRequest(c *gin.Context, req entity.TemplateUpsertRequest) (entity.TemplateReplace, bool) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		MissingField(c, "name")
		return entity.TemplateReplace{}, false
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		MissingField(c, "prompt")
		return entity.TemplateReplace{}, false
	}

	ratio, err := service.NormalizeAspectRatio(req.AspectRatio)
	if err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid aspect ratio")
		return entity.TemplateReplace{}, false
	}

	imageIDs := make(entity.UintArray, 0, len(req.ImageIDs))
	imageIDs = append(imageIDs, req.ImageIDs...)

	return entity.TemplateReplace{
		Name:        name,
		Prompt:      prompt,
		ImageIDs:    imageIDs,
		AspectRatio: ratio,
	}, true
}

// ensureTemplateImagesExist 确认模板引用的图片 ID 都还存在。
func (h *HTTPHandler) ensureTemplateImagesExist(c *gin.Context, ctx context.Context, imageIDs entity.UintArray) bool {
	if len(imageIDs) == 0 {
		return true
	}

	records, err := h.repo.FindImagesByIDs(ctx, imageIDs.ToSlice())
	if err != nil {
		logrus.WithError(err).Error("failed to resolve template images")
		InternalError(c, "failed to resolve template images")
		return false
	}

	found := make(map[uint]struct{}, len(records))
	for _, record := range records {
		found[record.ID] = struct{}{}
	}
	for _, id := range imageIDs {
		if _, ok := found[id]; !ok {
			ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeUnknownImage,
				fmt.Sprintf("unknown image id %d", id), gin.H{"image_id": id})
			return false
		}
	}
	return true
}

func (h *HTTPHandler) makeTemplateItem(record entity.DbTemplate) entity.TemplateItem {
	return entity.TemplateItem{
		ID:          record.ID,
		Name:        record.Name,
		Prompt:      record.Prompt,
		ImageIDs:    record.ImageIDs,
		AspectRatio: record.AspectRatio,
		HasImages:   len(record.ImageIDs) > 0,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
