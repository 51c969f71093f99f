package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

// RunStageUseCase drives one AI transformation of a page's recognized text:
// punctuation, vernacular translation, or explanation. It follows the same
// dispatch/cache pattern as recognition, keyed by the stage discriminator
// inside the page's annotation. Streaming chunks go straight to the caller;
// only terminal results are persisted, so a cancelled stage leaves the cache
// exactly as it was.
type RunStageUseCase struct {
	cfg        ConfigSource
	cache      ports.AnnotationCache
	dispatcher ports.TaskDispatcher
	log        *slog.Logger
}

func NewRunStageUseCase(cfg ConfigSource, cache ports.AnnotationCache, dispatcher ports.TaskDispatcher, log *slog.Logger) *RunStageUseCase {
	return &RunStageUseCase{cfg: cfg, cache: cache, dispatcher: dispatcher, log: log}
}

// Run dispatches the stage for one page and returns its task handle. The
// page must already be recognized and carry non-empty source text. When the
// task resolves, the final StageResult is committed to the cache recording
// the exact text it was derived from.
func (uc *RunStageUseCase) Run(ctx context.Context, doc *domain.Document, pageIndex int, stage domain.Stage, stream ports.StreamFunc) (ports.StageTask, error) {
	cfg := uc.cfg.Current()
	key, err := domain.Fingerprint(doc.ID, pageIndex, cfg.OCRSignature())
	if err != nil {
		return nil, err
	}

	entry, hit, err := uc.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run stage "+string(stage), errors.New("page is not recognized yet"))
	}
	source := entry.Annotation.SourceText()
	if strings.TrimSpace(source) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run stage "+string(stage), errors.New("page has no source text"))
	}

	req := ports.CompletionRequest{
		Model:        cfg.StageModel(string(stage)),
		SystemPrompt: cfg.StagePrompt(string(stage)),
		UserText:     source,
	}

	wrapped := func(event ports.StreamEvent) {
		if event.Done {
			uc.persist(key, stage, source, event)
		}
		if stream != nil {
			stream(event)
		}
	}
	return uc.dispatcher.SubmitStage(ctx, doc.ID, stage, req, wrapped), nil
}

// Result reads the stored stage result for one page, if any.
func (uc *RunStageUseCase) Result(ctx context.Context, doc *domain.Document, pageIndex int, stage domain.Stage) (domain.StageResult, bool, error) {
	cfg := uc.cfg.Current()
	key, err := domain.Fingerprint(doc.ID, pageIndex, cfg.OCRSignature())
	if err != nil {
		return domain.StageResult{}, false, err
	}
	entry, hit, err := uc.cache.Get(ctx, key)
	if err != nil || !hit {
		return domain.StageResult{}, false, err
	}
	result, ok := entry.Annotation.Stages[stage]
	return result, ok, nil
}

// persist commits the terminal stage result. The cache is re-read first so a
// proofreading edit that landed mid-stream is not lost; if the page text has
// drifted from what the stage consumed, the result is committed already
// stale.
func (uc *RunStageUseCase) persist(key string, stage domain.Stage, source string, event ports.StreamEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry, hit, err := uc.cache.Get(ctx, key)
	if err != nil || !hit {
		uc.log.Warn("stage_result_not_persisted", "fingerprint", key, "stage", stage, "error", err)
		return
	}

	result := domain.StageResult{
		Stage:      stage,
		Text:       event.Text,
		Status:     domain.StageComplete,
		SourceText: source,
		Stale:      entry.Annotation.SourceText() != source,
		UpdatedAt:  time.Now().UTC(),
	}
	if event.Err != nil {
		result.Status = domain.StageFailed
		result.Error = event.Err.Error()
	}

	annotation := entry.Annotation.Clone()
	annotation.SetStage(result)
	put := domain.CacheEntry{
		Fingerprint: key,
		Annotation:  *annotation,
		Revision:    entry.Revision + 1,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := uc.cache.Put(ctx, put); err != nil {
		uc.log.Warn("stage_result_not_persisted", "fingerprint", key, "stage", stage, "error", err)
	}
}
