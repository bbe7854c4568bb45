package service

import (
	"errors"
	"reflect"
	"testing"

	"github.com/CreateIntelligens/banana-art/internal/entity"
)

func imageFixtures(ids ...uint) map[uint]entity.DbImage {
	images := make(map[uint]entity.DbImage, len(ids))
	for _, id := range ids {
		images[id] = entity.DbImage{ID: id, StoredPath: "uploads/fixture.png"}
	}
	return images
}

func composedIDs(input *ComposedInput) []uint {
	ids := make([]uint, 0, len(input.Images))
	for _, image := range input.Images {
		ids = append(ids, image.ID)
	}
	return ids
}

func TestComposeInputWithoutTemplate(t *testing.T) {
	images := imageFixtures(3, 1, 2)

	input, err := ComposeInput("a cat on the moon", []uint{3, 1}, nil, images, "16:9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if input.Prompt != "a cat on the moon" {
		t.Errorf("expected prompt preserved, got %q", input.Prompt)
	}
	if input.AspectRatio != "16:9" {
		t.Errorf("expected aspect ratio 16:9, got %q", input.AspectRatio)
	}
	if got := composedIDs(input); !reflect.DeepEqual(got, []uint{3, 1}) {
		t.Errorf("expected image order [3 1], got %v", got)
	}
}

func TestComposeInputCallerOrderPreserved(t *testing.T) {
	// 调用方选择的顺序必须原样保留，不做排序或去重
	images := imageFixtures(1, 2, 3, 4)

	input, err := ComposeInput("prompt", []uint{4, 2, 4}, nil, images, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := composedIDs(input); !reflect.DeepEqual(got, []uint{4, 2, 4}) {
		t.Errorf("expected image order [4 2 4], got %v", got)
	}
}

func TestComposeInputTemplateOrdering(t *testing.T) {
	// 模板路径下的顺序：[调用方的图] ++ [模板的图]
	images := imageFixtures(1, 2, 10, 11)
	template := &entity.DbTemplate{
		ID:          7,
		Prompt:      "template prompt",
		ImageIDs:    entity.UintArray{10, 11},
		AspectRatio: "3:4",
	}

	input, err := ComposeInput("caller prompt", []uint{2, 1}, template, images, "16:9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := composedIDs(input); !reflect.DeepEqual(got, []uint{2, 1, 10, 11}) {
		t.Errorf("expected image order [2 1 10 11], got %v", got)
	}
	if input.Prompt != "template prompt" {
		t.Errorf("expected template prompt to win, got %q", input.Prompt)
	}
	if input.AspectRatio != "3:4" {
		t.Errorf("expected template aspect ratio to win, got %q", input.AspectRatio)
	}
}

func TestComposeInputTemplateIgnoresCallerPrompt(t *testing.T) {
	// 有模板时调用方的提示词被丢弃，空提示词也不报错
	template := &entity.DbTemplate{ID: 1, Prompt: "from template"}

	input, err := ComposeInput("", nil, template, imageFixtures(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input.Prompt != "from template" {
		t.Errorf("expected template prompt, got %q", input.Prompt)
	}
	if input.AspectRatio != DefaultAspectRatio {
		t.Errorf("expected default aspect ratio, got %q", input.AspectRatio)
	}
}

func TestComposeInputPromptRequired(t *testing.T) {
	_, err := ComposeInput("   ", nil, nil, imageFixtures(), "")
	if !errors.Is(err, ErrPromptRequired) {
		t.Fatalf("expected ErrPromptRequired, got %v", err)
	}
}

func TestComposeInputUnknownImage(t *testing.T) {
	images := imageFixtures(1)

	_, err := ComposeInput("prompt", []uint{1, 99}, nil, images, "")
	var unknown *UnknownImageError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownImageError, got %v", err)
	}
	if unknown.ID != 99 {
		t.Errorf("expected unknown id 99, got %d", unknown.ID)
	}
}

func TestComposeInputUnknownTemplateImage(t *testing.T) {
	// 模板引用的图被删掉后，创建任务要报同样的未知图片错误
	images := imageFixtures(1)
	template := &entity.DbTemplate{ID: 5, Prompt: "p", ImageIDs: entity.UintArray{42}}

	_, err := ComposeInput("", []uint{1}, template, images, "")
	var unknown *UnknownImageError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownImageError, got %v", err)
	}
	if unknown.ID != 42 {
		t.Errorf("expected unknown id 42, got %d", unknown.ID)
	}
}

func TestComposeInputDeterministic(t *testing.T) {
	images := imageFixtures(1, 2, 3)
	template := &entity.DbTemplate{ID: 1, Prompt: "p", ImageIDs: entity.UintArray{3}, AspectRatio: "2:3"}

	first, err := ComposeInput("x", []uint{2, 1}, template, images, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ComposeInput("x", []uint{2, 1}, template, images, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results, got %+v vs %+v", first, second)
	}
}

func TestNormalizeAspectRatio(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "空值用默认", input: "", want: DefaultAspectRatio},
		{name: "空白用默认", input: "  ", want: DefaultAspectRatio},
		{name: "正方形", input: "1:1", want: "1:1"},
		{name: "宽幅", input: "16:9", want: "16:9"},
		{name: "两位数", input: "21:10", want: "21:10"},
		{name: "前导零非法", input: "01:1", wantErr: true},
		{name: "零非法", input: "0:1", wantErr: true},
		{name: "缺少冒号", input: "169", wantErr: true},
		{name: "带字母", input: "a:b", wantErr: true},
		{name: "三位数非法", input: "100:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAspectRatio(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAspectRatio) {
					t.Fatalf("expected ErrInvalidAspectRatio, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
