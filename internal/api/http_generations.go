package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"github.com/CreateIntelligens/banana-art/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateGeneration 同步校验并登记任务，执行在后台进行。
// 响应 202，调用方通过轮询 GET /api/generations/:id 拿结果。
func (h *HTTPHandler) CreateGeneration(c *gin.Context) {
	var req entity.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	record, err := h.generationService.Create(ctx, req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, h.makeGenerationItem(*record))
}

// GetGeneration 读取任务当前状态，这是轮询端点。
func (h *HTTPHandler) GetGeneration(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	record, err := h.generationService.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "generation not found")
			return
		}
		logrus.WithError(err).WithField("generation_id", id).Error("failed to load generation")
		InternalError(c, "failed to load generation")
		return
	}

	c.JSON(http.StatusOK, h.makeGenerationItem(*record))
}

// ListGenerations 按创建时间倒序分页列出任务，支持按状态过滤。
func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	var query entity.GenerationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		InvalidPayload(c)
		return
	}

	switch query.Status {
	case "", entity.GenerationStatusPending, entity.GenerationStatusSucceeded, entity.GenerationStatusFailed:
	default:
		BadRequest(c, ErrCodeInvalidRequest, "invalid status filter")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, meta, err := h.generationService.List(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list generations")
		InternalError(c, "failed to list generations")
		return
	}

	items := make([]entity.GenerationItem, 0, len(records))
	for _, record := range records {
		items = append(items, h.makeGenerationItem(record))
	}

	c.JSON(http.StatusOK, entity.GenerationListResponse{Generations: items, Meta: meta})
}

// DeleteGeneration 删除任务记录及产物。pending 任务也可以删，
// 在途执行的结果落库时会被丢弃。
func (h *HTTPHandler) DeleteGeneration(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.generationService.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "generation not found")
			return
		}
		logrus.WithError(err).WithField("generation_id", id).Error("failed to delete generation")
		InternalError(c, "failed to delete generation")
		return
	}

	c.Status(http.StatusNoContent)
}

// writeGenerationError 把服务层的创建错误映射为对应的错误码。
func (h *HTTPHandler) writeGenerationError(c *gin.Context, err error) {
	var unknownImage *service.UnknownImageError
	switch {
	case errors.Is(err, service.ErrPromptRequired):
		MissingField(c, "prompt")
	case errors.Is(err, service.ErrInvalidAspectRatio):
		BadRequest(c, ErrCodeInvalidRequest, "invalid aspect ratio")
	case errors.Is(err, service.ErrTemplateNotFound):
		BadRequest(c, ErrCodeUnknownTemplate, "template not found")
	case errors.As(err, &unknownImage):
		ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeUnknownImage,
			err.Error(), gin.H{"image_id": unknownImage.ID})
	default:
		logrus.WithError(err).Error("failed to create generation")
		InternalError(c, "failed to create generation")
	}
}

// makeGenerationItem 组装轮询响应。产物编码是显式的：pending 时
// output 为 null，终态时由 kind 区分图片、文本或失败信息。
func (h *HTTPHandler) makeGenerationItem(record entity.DbGeneration) entity.GenerationItem {
	item := entity.GenerationItem{
		ID:             record.ID,
		Prompt:         record.Prompt,
		TemplateID:     record.TemplateID,
		SourceImageIDs: record.SourceImageIDs,
		AspectRatio:    record.AspectRatio,
		Status:         record.Status,
		CreatedAt:      record.CreatedAt,
		StartedAt:      record.StartedAt,
		CompletedAt:    record.CompletedAt,
	}
	if item.SourceImageIDs == nil {
		item.SourceImageIDs = []uint{}
	}

	switch record.Status {
	case entity.GenerationStatusSucceeded:
		output := &entity.GenerationOutput{Kind: record.OutputKind}
		if record.OutputKind == entity.OutputKindImage {
			output.Path = record.OutputPath
			output.URL = h.publicURL(record.OutputPath)
		} else {
			output.Text = record.OutputText
		}
		item.Output = output
	case entity.GenerationStatusFailed:
		item.Output = &entity.GenerationOutput{Error: record.ErrorMessage}
	}

	return item
}
