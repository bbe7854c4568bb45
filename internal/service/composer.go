package service

import (
	"regexp"
	"strings"

	"github.com/CreateIntelligens/banana-art/internal/entity"
)

// DefaultAspectRatio 未指定画幅时的默认值。
const DefaultAspectRatio = "1:1"

var aspectRatioPattern = regexp.MustCompile(`^[1-9][0-9]?:[1-9][0-9]?$`)

// NormalizeAspectRatio 校验并规范化画幅比例，空值落到默认值。
func NormalizeAspectRatio(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultAspectRatio, nil
	}
	if !aspectRatioPattern.MatchString(trimmed) {
		return "", ErrInvalidAspectRatio
	}
	return trimmed, nil
}

// ComposedInput 是一次任务发给模型的最终输入：解析后的提示词、
// 有序图片记录和画幅比例。
type ComposedInput struct {
	Prompt      string
	Images      []entity.DbImage
	AspectRatio string
}

// SourceImageIDs 返回按提交顺序排列的图片 ID。
func (c *ComposedInput) SourceImageIDs() entity.UintArray {
	ids := make(entity.UintArray, 0, len(c.Images))
	for _, image := range c.Images {
		ids = append(ids, image.ID)
	}
	return ids
}

// ComposeInput 纯解析，不触库：相同的入参永远得到相同的组合结果。
//
// 无模板：提示词来自调用方（必填），图片为调用方选择的顺序，画幅取调用方
// 的值。有模板：提示词和画幅以模板为准（调用方传入的被丢弃，这是刻意
// 设计），图片顺序为 [调用方选择的图，按选择顺序] ++ [模板参考图，按存储
// 顺序]。
func ComposeInput(prompt string, imageIDs []uint, template *entity.DbTemplate, images map[uint]entity.DbImage, aspectRatio string) (*ComposedInput, error) {
	resolvedIDs := make([]uint, 0, len(imageIDs))
	resolvedIDs = append(resolvedIDs, imageIDs...)
	if template != nil {
		resolvedIDs = append(resolvedIDs, template.ImageIDs...)
	}

	ordered := make([]entity.DbImage, 0, len(resolvedIDs))
	for _, id := range resolvedIDs {
		image, ok := images[id]
		if !ok {
			return nil, &UnknownImageError{ID: id}
		}
		ordered = append(ordered, image)
	}

	if template != nil {
		ratio, err := NormalizeAspectRatio(template.AspectRatio)
		if err != nil {
			return nil, err
		}
		return &ComposedInput{
			Prompt:      template.Prompt,
			Images:      ordered,
			AspectRatio: ratio,
		}, nil
	}

	trimmedPrompt := strings.TrimSpace(prompt)
	if trimmedPrompt == "" {
		return nil, ErrPromptRequired
	}
	ratio, err := NormalizeAspectRatio(aspectRatio)
	if err != nil {
		return nil, err
	}
	return &ComposedInput{
		Prompt:      trimmedPrompt,
		Images:      ordered,
		AspectRatio: ratio,
	}, nil
}
