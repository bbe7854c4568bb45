package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPromptRequired 非模板路径缺少提示词。
	ErrPromptRequired = errors.New("prompt is required")
	// ErrInvalidAspectRatio 画幅比例不是 "宽:高" 形式。
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	// ErrTemplateNotFound 引用的模板不存在。
	ErrTemplateNotFound = errors.New("template not found")
)

// UnknownImageError 指出具体哪个图片 ID 无法解析。
type UnknownImageError struct {
	ID uint
}

func (e *UnknownImageError) Error() string {
	return fmt.Sprintf("unknown image id %d", e.ID)
}
