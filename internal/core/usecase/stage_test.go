package usecase

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/observability/logging"
)

func newStageFixture(dispatcher *fakeDispatcher) (*RunStageUseCase, *fakeCache, config.Config) {
	cfg := config.Default()
	cfg.ModelName = "qwen-max"
	cache := newFakeCache()
	log := logging.NewLogger(io.Discard, "test", "error")
	return NewRunStageUseCase(staticConfig{cfg}, cache, dispatcher, log), cache, cfg
}

func seedAnnotation(t *testing.T, cache *fakeCache, doc *domain.Document, page int, cfg config.Config, text string) string {
	t.Helper()
	key := mustKey(t, doc, page, cfg)
	cache.entries[key] = domain.CacheEntry{
		Fingerprint: key,
		Annotation: domain.PageAnnotation{
			Fingerprint: key,
			Regions:     []domain.Region{{ID: "r1", Text: text, EditState: domain.EditStateMachine}},
		},
		Revision: 1,
	}
	return key
}

func TestRunStageStreamsAndPersists(t *testing.T) {
	dispatcher := &fakeDispatcher{stageChunks: []string{"昔", "有", "古人"}}
	uc, cache, cfg := newStageFixture(dispatcher)
	doc := testDoc()
	key := seedAnnotation(t, cache, doc, 0, cfg, "昔有古人")

	var transcript []string
	var statuses []domain.StageStatus
	task, err := uc.Run(context.Background(), doc, 0, domain.StagePunctuate, func(event ports.StreamEvent) {
		statuses = append(statuses, event.Status)
		if event.Delta != "" {
			transcript = append(transcript, event.Text)
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-task.Done()
	text, err := task.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if text != "昔有古人" {
		t.Fatalf("final text = %q", text)
	}

	want := []string{"昔", "昔有", "昔有古人"}
	if len(transcript) != len(want) {
		t.Fatalf("transcript = %v", transcript)
	}
	for i := range want {
		if transcript[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, transcript[i], want[i])
		}
	}
	wantStatuses := []domain.StageStatus{
		domain.StagePending,
		domain.StageStreaming, domain.StageStreaming, domain.StageStreaming,
		domain.StageComplete,
	}
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range wantStatuses {
		if statuses[i] != wantStatuses[i] {
			t.Fatalf("status %d = %s, want %s", i, statuses[i], wantStatuses[i])
		}
	}

	result, ok := cache.entries[key].Annotation.Stages[domain.StagePunctuate]
	if !ok {
		t.Fatal("stage result not persisted")
	}
	if result.Status != domain.StageComplete || result.Text != "昔有古人" || result.SourceText != "昔有古人" {
		t.Fatalf("persisted result = %+v", result)
	}
	if result.Stale {
		t.Fatal("fresh result must not be stale")
	}
	if cache.entries[key].Revision != 2 {
		t.Fatalf("revision = %d, want 2", cache.entries[key].Revision)
	}
}

func TestRunStageCarriesModelAndPrompt(t *testing.T) {
	dispatcher := &fakeDispatcher{stageChunks: []string{"x"}}
	uc, cache, cfg := newStageFixture(dispatcher)
	doc := testDoc()
	seedAnnotation(t, cache, doc, 0, cfg, "原文")

	_, err := uc.Run(context.Background(), doc, 0, domain.StageVernacular, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if dispatcher.lastStage != domain.StageVernacular {
		t.Fatalf("stage = %s", dispatcher.lastStage)
	}
	if dispatcher.lastReq.Model != "qwen-max" {
		t.Fatalf("model = %q, want default fallback", dispatcher.lastReq.Model)
	}
	if dispatcher.lastReq.SystemPrompt != cfg.StagePrompt("vernacular") {
		t.Fatal("system prompt not taken from config")
	}
	if dispatcher.lastReq.UserText != "原文" {
		t.Fatalf("user text = %q", dispatcher.lastReq.UserText)
	}
}

func TestRunStagePersistsFailure(t *testing.T) {
	wantErr := domain.WrapError(domain.ErrAiFailed, "punctuate", errors.New("upstream 500"))
	dispatcher := &fakeDispatcher{stageErr: wantErr}
	uc, cache, cfg := newStageFixture(dispatcher)
	doc := testDoc()
	key := seedAnnotation(t, cache, doc, 0, cfg, "原文")

	task, err := uc.Run(context.Background(), doc, 0, domain.StagePunctuate, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-task.Done()
	if _, err := task.Result(); !domain.IsKind(err, domain.ErrAiFailed) {
		t.Fatalf("result err = %v", err)
	}

	result := cache.entries[key].Annotation.Stages[domain.StagePunctuate]
	if result.Status != domain.StageFailed || result.Error == "" {
		t.Fatalf("persisted failure = %+v", result)
	}
}

func TestRunStageRequiresRecognizedPage(t *testing.T) {
	uc, _, _ := newStageFixture(&fakeDispatcher{})
	_, err := uc.Run(context.Background(), testDoc(), 0, domain.StagePunctuate, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestRunStageRequiresSourceText(t *testing.T) {
	uc, cache, cfg := newStageFixture(&fakeDispatcher{})
	doc := testDoc()
	key := mustKey(t, doc, 0, cfg)
	cache.entries[key] = domain.CacheEntry{
		Fingerprint: key,
		Annotation: domain.PageAnnotation{
			Fingerprint: key,
			Regions:     []domain.Region{{ID: "r1", Text: "gone", EditState: domain.EditStateUserDeleted}},
		},
		Revision: 1,
	}
	_, err := uc.Run(context.Background(), doc, 0, domain.StageExplain, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestStageResultLookup(t *testing.T) {
	uc, cache, cfg := newStageFixture(&fakeDispatcher{})
	doc := testDoc()
	key := seedAnnotation(t, cache, doc, 0, cfg, "原文")
	entry := cache.entries[key]
	entry.Annotation.SetStage(domain.StageResult{Stage: domain.StageExplain, Text: "注", Status: domain.StageComplete})
	cache.entries[key] = entry

	result, ok, err := uc.Result(context.Background(), doc, 0, domain.StageExplain)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if result.Text != "注" {
		t.Fatalf("result = %+v", result)
	}
	if _, ok, _ := uc.Result(context.Background(), doc, 0, domain.StageVernacular); ok {
		t.Fatal("missing stage must report not found")
	}
}
