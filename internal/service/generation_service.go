package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"github.com/CreateIntelligens/banana-art/internal/llm"
	"github.com/CreateIntelligens/banana-art/internal/model"
	"github.com/CreateIntelligens/banana-art/internal/storage"
	"github.com/CreateIntelligens/banana-art/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultGenerationTimeout = 10 * time.Minute

// GenerationService 管理生成任务的生命周期：创建时同步校验并冻结输入，
// 执行在独立 goroutine 上进行，终态由仓库的条件写入保证只落一次。
type GenerationService struct {
	repo    model.Repository
	storage storage.Storage
	adapter llm.Adapter
	timeout time.Duration
}

// NewGenerationService 创建生成服务实例。
func NewGenerationService(repo model.Repository, store storage.Storage, adapter llm.Adapter, timeout time.Duration) *GenerationService {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &GenerationService{
		repo:    repo,
		storage: store,
		adapter: adapter,
		timeout: timeout,
	}
}

// Create 校验请求、落一条 pending 记录并调度后台执行，立刻返回。
// 创建路径绝不等待模型调用。
func (s *GenerationService) Create(ctx context.Context, req entity.CreateGenerationRequest) (*entity.DbGeneration, error) {
	var template *entity.DbTemplate
	if req.TemplateID != nil {
		found, err := s.repo.GetTemplate(ctx, *req.TemplateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTemplateNotFound
			}
			return nil, fmt.Errorf("load template: %w", err)
		}
		template = found
	}

	lookupIDs := make([]uint, 0, len(req.ImageIDs))
	lookupIDs = append(lookupIDs, req.ImageIDs...)
	if template != nil {
		lookupIDs = append(lookupIDs, template.ImageIDs...)
	}

	images := make(map[uint]entity.DbImage, len(lookupIDs))
	if len(lookupIDs) > 0 {
		records, err := s.repo.FindImagesByIDs(ctx, lookupIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve images: %w", err)
		}
		for _, record := range records {
			images[record.ID] = record
		}
	}

	composed, err := ComposeInput(req.Prompt, req.ImageIDs, template, images, req.AspectRatio)
	if err != nil {
		return nil, err
	}

	record := &entity.DbGeneration{
		Prompt:         composed.Prompt,
		TemplateID:     req.TemplateID,
		SourceImageIDs: composed.SourceImageIDs(),
		AspectRatio:    composed.AspectRatio,
		Status:         entity.GenerationStatusPending,
	}
	if err := s.repo.CreateGeneration(ctx, record); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"generation_id": record.ID,
		"image_count":   len(composed.Images),
		"aspect_ratio":  composed.AspectRatio,
		"from_template": template != nil,
	}).Info("queued generation job")

	go s.run(*record, *composed)

	return record, nil
}

// Get 读取当前任务记录，无副作用，可与执行并发调用。
func (s *GenerationService) Get(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	return s.repo.GetGeneration(ctx, id)
}

// List 按创建时间倒序返回任务历史。
func (s *GenerationService) List(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	return s.repo.ListGenerations(ctx, params)
}

// Delete 删除任务记录及其产物，绝不触碰源图片。对 pending 任务安全：
// 在途执行完成时的终态写入会命中零行，结果被静默丢弃。
func (s *GenerationService) Delete(ctx context.Context, id uint) error {
	record, err := s.repo.GetGeneration(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteGeneration(ctx, id); err != nil {
		return err
	}

	if record.OutputKind == entity.OutputKindImage && record.OutputPath != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, record.OutputPath); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"generation_id": id,
				"output_path":   record.OutputPath,
			}).Warn("failed to remove output artifact")
		}
	}

	return nil
}

// run 是任务的后台执行体：加载源图、调用模型、写入终态。
func (s *GenerationService) run(gen entity.DbGeneration, input ComposedInput) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger := logrus.WithField("generation_id", gen.ID)

	if err := s.repo.MarkGenerationStarted(ctx, gen.ID, time.Now().UTC()); err != nil {
		logger.WithError(err).Warn("failed to mark generation started")
	}

	references := make([]llm.ImageInput, 0, len(input.Images))
	for _, image := range input.Images {
		data, err := s.storage.Load(ctx, image.StoredPath)
		if err != nil {
			logger.WithError(err).WithField("image_id", image.ID).Error("failed to load source image")
			s.finish(gen.ID, entity.GenerationResult{
				Status:       entity.GenerationStatusFailed,
				ErrorMessage: fmt.Sprintf("load source image %d: %v", image.ID, err),
			})
			return
		}
		references = append(references, llm.ImageInput{
			Data:     data,
			MimeType: utils.DetectImageMime(data),
		})
	}

	result, err := s.adapter.Invoke(ctx, llm.Request{
		Prompt:      input.Prompt,
		Images:      references,
		AspectRatio: input.AspectRatio,
	})
	if err != nil {
		logger.WithError(err).Error("generation failed")
		s.finish(gen.ID, entity.GenerationResult{
			Status:       entity.GenerationStatusFailed,
			ErrorMessage: err.Error(),
		})
		return
	}

	switch {
	case result.HasImage():
		ext := utils.ExtensionFromMime(result.ImageMime)
		if ext == "" {
			ext = "png"
		}
		relPath, err := s.storage.Save(ctx, result.ImageData, storage.SaveOptions{
			Category:  "generated",
			Extension: ext,
			BaseName:  "gen_" + uuid.NewString(),
		})
		if err != nil {
			logger.WithError(err).Error("failed to persist output artifact")
			s.finish(gen.ID, entity.GenerationResult{
				Status:       entity.GenerationStatusFailed,
				ErrorMessage: fmt.Sprintf("persist output artifact: %v", err),
			})
			return
		}
		logger.WithField("output_path", relPath).Info("generation succeeded with image")
		s.finish(gen.ID, entity.GenerationResult{
			Status:     entity.GenerationStatusSucceeded,
			OutputKind: entity.OutputKindImage,
			OutputPath: relPath,
		})

	case result.Text != "":
		logger.Info("generation succeeded with text only")
		s.finish(gen.ID, entity.GenerationResult{
			Status:     entity.GenerationStatusSucceeded,
			OutputKind: entity.OutputKindText,
			OutputText: result.Text,
		})

	default:
		logger.Error("model returned no usable output")
		s.finish(gen.ID, entity.GenerationResult{
			Status:       entity.GenerationStatusFailed,
			ErrorMessage: "model returned no usable output",
		})
	}
}

// finish 写入终态。记录已被删除或已是终态时，结果直接丢弃。
func (s *GenerationService) finish(id uint, result entity.GenerationResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result.CompletedAt = time.Now().UTC()

	applied, err := s.repo.CompleteGeneration(ctx, id, result)
	if err != nil {
		logrus.WithError(err).WithField("generation_id", id).Error("failed to write terminal state")
		return
	}
	if !applied {
		logrus.WithFields(logrus.Fields{
			"generation_id": id,
			"status":        result.Status,
		}).Info("generation record gone or already terminal, result discarded")
	}
}
