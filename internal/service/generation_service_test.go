package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CreateIntelligens/banana-art/internal/entity"
	"github.com/CreateIntelligens/banana-art/internal/llm"
	"github.com/CreateIntelligens/banana-art/internal/storage"
	"gorm.io/gorm"
)

// fakeRepository 是内存版仓库，终态写入与 SQL 实现一样走条件更新。
type fakeRepository struct {
	mu          sync.Mutex
	images      map[uint]entity.DbImage
	templates   map[uint]entity.DbTemplate
	generations map[uint]*entity.DbGeneration
	nextID      uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		images:      make(map[uint]entity.DbImage),
		templates:   make(map[uint]entity.DbTemplate),
		generations: make(map[uint]*entity.DbGeneration),
	}
}

func (f *fakeRepository) addImage(id uint, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id] = entity.DbImage{ID: id, Filename: fmt.Sprintf("img-%d.png", id), StoredPath: path}
}

func (f *fakeRepository) addTemplate(template entity.DbTemplate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[template.ID] = template
}

func (f *fakeRepository) CreateImage(ctx context.Context, image *entity.DbImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	image.ID = f.nextID
	f.images[image.ID] = *image
	return nil
}

func (f *fakeRepository) GetImage(ctx context.Context, id uint) (*entity.DbImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	image, ok := f.images[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &image, nil
}

func (f *fakeRepository) FindImagesByIDs(ctx context.Context, ids []uint) ([]entity.DbImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := make([]entity.DbImage, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if image, ok := f.images[id]; ok {
			found = append(found, image)
		}
	}
	return found, nil
}

func (f *fakeRepository) ListImages(ctx context.Context, params *entity.ImageQuery) ([]entity.DbImage, *entity.Meta, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeRepository) DeleteImage(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, id)
	return nil
}

func (f *fakeRepository) CreateTemplate(ctx context.Context, template *entity.DbTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	template.ID = f.nextID
	f.templates[template.ID] = *template
	return nil
}

func (f *fakeRepository) ReplaceTemplate(ctx context.Context, id uint, replace entity.TemplateReplace) error {
	return errors.New("not implemented")
}

func (f *fakeRepository) GetTemplate(ctx context.Context, id uint) (*entity.DbTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	template, ok := f.templates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &template, nil
}

func (f *fakeRepository) ListTemplates(ctx context.Context) ([]entity.DbTemplate, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRepository) DeleteTemplate(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.templates, id)
	return nil
}

func (f *fakeRepository) CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	generation.ID = f.nextID
	generation.CreatedAt = time.Now().UTC()
	clone := *generation
	f.generations[generation.ID] = &clone
	return nil
}

func (f *fakeRepository) GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.generations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeRepository) MarkGenerationStarted(ctx context.Context, id uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.generations[id]
	if !ok || record.Status != entity.GenerationStatusPending {
		return nil
	}
	started := at
	record.StartedAt = &started
	return nil
}

func (f *fakeRepository) CompleteGeneration(ctx context.Context, id uint, result entity.GenerationResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.generations[id]
	if !ok || record.Status != entity.GenerationStatusPending {
		return false, nil
	}
	record.Status = result.Status
	record.OutputKind = result.OutputKind
	record.OutputPath = result.OutputPath
	record.OutputText = result.OutputText
	record.ErrorMessage = result.ErrorMessage
	completed := result.CompletedAt
	record.CompletedAt = &completed
	return true, nil
}

func (f *fakeRepository) DeleteGeneration(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.generations[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.generations, id)
	return nil
}

// fakeStorage 内存存储，记录删除调用。
type fakeStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	loadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) put(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
}

func (f *fakeStorage) Save(ctx context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := fmt.Sprintf("%s/%s.%s", opts.Category, opts.BaseName, opts.Extension)
	f.files[path] = data
	return path, nil
}

func (f *fakeStorage) Load(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (f *fakeStorage) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.deleted = append(f.deleted, path)
	return nil
}

// stubAdapter 返回预设结果或错误。
type stubAdapter struct {
	mu       sync.Mutex
	result   *llm.Result
	err      error
	requests []llm.Request
}

func (s *stubAdapter) Invoke(ctx context.Context, request llm.Request) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func waitForTerminal(t *testing.T, repo *fakeRepository, id uint) *entity.DbGeneration {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := repo.GetGeneration(context.Background(), id)
		if err == nil && record.Status != entity.GenerationStatusPending {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("generation never reached terminal state")
	return nil
}

func TestCreateGenerationReturnsPending(t *testing.T) {
	repo := newFakeRepository()
	repo.addImage(1, "uploads/a.png")
	repo.addImage(2, "uploads/b.png")
	store := newFakeStorage()
	store.put("uploads/a.png", []byte("aaa"))
	store.put("uploads/b.png", []byte("bbb"))
	adapter := &stubAdapter{result: &llm.Result{Text: "done"}}
	svc := NewGenerationService(repo, store, adapter, time.Minute)

	record, err := svc.Create(context.Background(), entity.CreateGenerationRequest{
		Prompt:   "draw something",
		ImageIDs: []uint{2, 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.Status != entity.GenerationStatusPending {
		t.Errorf("expected pending status on return, got %q", record.Status)
	}
	if !reflect.DeepEqual(record.SourceImageIDs.ToSlice(), []uint{2, 1}) {
		t.Errorf("expected frozen source ids [2 1], got %v", record.SourceImageIDs)
	}

	final := waitForTerminal(t, repo, record.ID)
	if final.Status != entity.GenerationStatusSucceeded {
		t.Errorf("expected succeeded, got %q (%s)", final.Status, final.ErrorMessage)
	}
	if final.OutputKind != entity.OutputKindText || final.OutputText != "done" {
		t.Errorf("expected text output, got kind=%q text=%q", final.OutputKind, final.OutputText)
	}
}

func TestCreateGenerationUnknownTemplate(t *testing.T) {
	repo := newFakeRepository()
	svc := NewGenerationService(repo, newFakeStorage(), &stubAdapter{}, time.Minute)

	missing := uint(404)
	_, err := svc.Create(context.Background(), entity.CreateGenerationRequest{
		Prompt:     "x",
		TemplateID: &missing,
	})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestCreateGenerationUnknownImage(t *testing.T) {
	repo := newFakeRepository()
	svc := NewGenerationService(repo, newFakeStorage(), &stubAdapter{}, time.Minute)

	_, err := svc.Create(context.Background(), entity.CreateGenerationRequest{
		Prompt:   "x",
		ImageIDs: []uint{9},
	})
	var unknown *UnknownImageError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownImageError, got %v", err)
	}
	if len(repo.generations) != 0 {
		t.Error("expected no generation record on validation failure")
	}
}

func TestRunImageSuccess(t *testing.T) {
	repo := newFakeRepository()
	repo.addImage(1, "uploads/ref.png")
	store := newFakeStorage()
	store.put("uploads/ref.png", []byte("reference-bytes"))
	adapter := &stubAdapter{result: &llm.Result{ImageData: []byte("generated-bytes"), ImageMime: "image/png"}}
	svc := NewGenerationService(repo, store, adapter, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", SourceImageIDs: entity.UintArray{1}, Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.run(*record, ComposedInput{
		Prompt:      "p",
		Images:      []entity.DbImage{{ID: 1, StoredPath: "uploads/ref.png"}},
		AspectRatio: "1:1",
	})

	final, err := repo.GetGeneration(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != entity.GenerationStatusSucceeded {
		t.Fatalf("expected succeeded, got %q (%s)", final.Status, final.ErrorMessage)
	}
	if final.OutputKind != entity.OutputKindImage {
		t.Errorf("expected image output kind, got %q", final.OutputKind)
	}
	if final.OutputPath == "" || !strings.HasPrefix(final.OutputPath, "generated/") {
		t.Errorf("expected artifact under generated/, got %q", final.OutputPath)
	}
	if final.CompletedAt == nil || final.StartedAt == nil {
		t.Error("expected started_at and completed_at to be set")
	}

	saved, loadErr := store.Load(context.Background(), final.OutputPath)
	if loadErr != nil {
		t.Fatalf("expected artifact stored: %v", loadErr)
	}
	if string(saved) != "generated-bytes" {
		t.Errorf("stored artifact mismatch: %q", saved)
	}

	// 模型收到的参考图就是源图字节
	if len(adapter.requests) != 1 || len(adapter.requests[0].Images) != 1 {
		t.Fatalf("expected one invocation with one reference image, got %+v", adapter.requests)
	}
	if string(adapter.requests[0].Images[0].Data) != "reference-bytes" {
		t.Error("reference image bytes mismatch")
	}
}

func TestRunAdapterFailure(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	adapter := &stubAdapter{err: llm.NewFailure(llm.FailureQuotaExceeded, "rate limited")}
	svc := NewGenerationService(repo, store, adapter, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.run(*record, ComposedInput{Prompt: "p", AspectRatio: "1:1"})

	final, err := repo.GetGeneration(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != entity.GenerationStatusFailed {
		t.Fatalf("expected failed, got %q", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "quota_exceeded") {
		t.Errorf("expected failure kind in error message, got %q", final.ErrorMessage)
	}
}

func TestRunSourceImageLoadFailure(t *testing.T) {
	repo := newFakeRepository()
	store := newFakeStorage()
	store.loadErr = errors.New("backend unavailable")
	svc := NewGenerationService(repo, store, &stubAdapter{}, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", SourceImageIDs: entity.UintArray{7}, Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.run(*record, ComposedInput{
		Prompt: "p",
		Images: []entity.DbImage{{ID: 7, StoredPath: "uploads/gone.png"}},
	})

	final, err := repo.GetGeneration(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != entity.GenerationStatusFailed {
		t.Fatalf("expected failed, got %q", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "load source image 7") {
		t.Errorf("expected load error message, got %q", final.ErrorMessage)
	}
}

func TestRunNoUsableOutput(t *testing.T) {
	repo := newFakeRepository()
	svc := NewGenerationService(repo, newFakeStorage(), &stubAdapter{result: &llm.Result{}}, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.run(*record, ComposedInput{Prompt: "p"})

	final, _ := repo.GetGeneration(context.Background(), record.ID)
	if final.Status != entity.GenerationStatusFailed {
		t.Fatalf("expected failed, got %q", final.Status)
	}
}

func TestDeletePendingDiscardsLateResult(t *testing.T) {
	// 删除 pending 任务后，在途执行的终态写入必须被静默丢弃
	repo := newFakeRepository()
	store := newFakeStorage()
	svc := NewGenerationService(repo, store, &stubAdapter{}, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Delete(context.Background(), record.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.finish(record.ID, entity.GenerationResult{
		Status:     entity.GenerationStatusSucceeded,
		OutputKind: entity.OutputKindText,
		OutputText: "late",
	})

	if _, err := repo.GetGeneration(context.Background(), record.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record to stay deleted, got %v", err)
	}
}

func TestFinishDoesNotOverwriteTerminalState(t *testing.T) {
	repo := newFakeRepository()
	svc := NewGenerationService(repo, newFakeStorage(), &stubAdapter{}, time.Minute)

	record := &entity.DbGeneration{Prompt: "p", Status: entity.GenerationStatusPending}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.finish(record.ID, entity.GenerationResult{
		Status:       entity.GenerationStatusFailed,
		ErrorMessage: "first",
	})
	svc.finish(record.ID, entity.GenerationResult{
		Status:     entity.GenerationStatusSucceeded,
		OutputKind: entity.OutputKindText,
		OutputText: "second",
	})

	final, _ := repo.GetGeneration(context.Background(), record.ID)
	if final.Status != entity.GenerationStatusFailed || final.ErrorMessage != "first" {
		t.Errorf("terminal state was overwritten: %+v", final)
	}
}

func TestDeleteImageKeepsGenerationHistory(t *testing.T) {
	// 创建时冻结的 source_image_ids 不随图片删除回写
	repo := newFakeRepository()
	repo.addImage(1, "uploads/a.png")
	repo.addImage(2, "uploads/b.png")
	store := newFakeStorage()
	store.put("uploads/a.png", []byte("aaa"))
	store.put("uploads/b.png", []byte("bbb"))
	adapter := &stubAdapter{result: &llm.Result{Text: "done"}}
	svc := NewGenerationService(repo, store, adapter, time.Minute)

	record, err := svc.Create(context.Background(), entity.CreateGenerationRequest{
		Prompt:   "p",
		ImageIDs: []uint{2, 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, repo, record.ID)

	if err := repo.DeleteImage(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := repo.GetGeneration(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("generation record must survive image deletion: %v", err)
	}
	if !reflect.DeepEqual(after.SourceImageIDs.ToSlice(), []uint{2, 1}) {
		t.Errorf("frozen source ids were rewritten: %v", after.SourceImageIDs)
	}
	if after.Status != entity.GenerationStatusSucceeded {
		t.Errorf("generation state changed after image deletion: %q", after.Status)
	}
}

func TestDeleteGenerationRemovesArtifactOnly(t *testing.T) {
	repo := newFakeRepository()
	repo.addImage(1, "uploads/src.png")
	store := newFakeStorage()
	store.put("uploads/src.png", []byte("src"))
	store.put("generated/out.png", []byte("out"))
	svc := NewGenerationService(repo, store, &stubAdapter{}, time.Minute)

	record := &entity.DbGeneration{
		Prompt:         "p",
		SourceImageIDs: entity.UintArray{1},
		Status:         entity.GenerationStatusSucceeded,
		OutputKind:     entity.OutputKindImage,
		OutputPath:     "generated/out.png",
	}
	if err := repo.CreateGeneration(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Delete(context.Background(), record.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Load(context.Background(), "generated/out.png"); err == nil {
		t.Error("expected output artifact to be removed")
	}
	// 源图必须原样保留
	if _, err := store.Load(context.Background(), "uploads/src.png"); err != nil {
		t.Errorf("source image must not be touched: %v", err)
	}
}
