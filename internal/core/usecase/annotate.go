package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/observability/metrics"
)

// ConfigSource supplies the live configuration snapshot; the manager in
// internal/config implements it.
type ConfigSource interface {
	Current() config.Config
}

// AnnotatePageUseCase drives the per-page pipeline: fingerprint, cache
// lookup, OCR dispatch on miss, layout post-processing, merge with prior
// edits, cache commit, and session bookkeeping. Cache trouble degrades to
// treat-as-miss / do-not-persist; it never fails the page.
type AnnotatePageUseCase struct {
	cfg        ConfigSource
	cache      ports.AnnotationCache
	state      ports.DocumentStateStore
	dispatcher ports.TaskDispatcher
	merger     *Merger
	metrics    *metrics.Pipeline
	log        *slog.Logger
}

func NewAnnotatePageUseCase(
	cfg ConfigSource,
	cache ports.AnnotationCache,
	state ports.DocumentStateStore,
	dispatcher ports.TaskDispatcher,
	merger *Merger,
	pipelineMetrics *metrics.Pipeline,
	log *slog.Logger,
) *AnnotatePageUseCase {
	return &AnnotatePageUseCase{
		cfg:        cfg,
		cache:      cache,
		state:      state,
		dispatcher: dispatcher,
		merger:     merger,
		metrics:    pipelineMetrics,
		log:        log,
	}
}

// Annotate returns the page's annotation, recognizing it when the cache has
// no entry. force dispatches OCR even on a hit, merging the fresh result
// over the cached annotation so user edits survive re-recognition.
func (uc *AnnotatePageUseCase) Annotate(ctx context.Context, doc *domain.Document, pageIndex int, force bool) (*domain.PageAnnotation, error) {
	cfg := uc.cfg.Current()
	key, err := domain.Fingerprint(doc.ID, pageIndex, cfg.OCRSignature())
	if err != nil {
		return nil, err
	}

	entry, hit, cacheUsable := uc.lookup(ctx, key)
	if uc.metrics != nil {
		uc.metrics.ObserveCache(hit)
	}
	if hit && !force {
		uc.recordVisit(ctx, doc, pageIndex)
		annotation := entry.Annotation
		return &annotation, nil
	}

	task := uc.dispatcher.SubmitOCR(ctx, doc, pageIndex, cfg.RenderScale)
	select {
	case <-task.Done():
	case <-ctx.Done():
		task.Cancel()
		return nil, ctx.Err()
	}
	lines, err := task.Result()
	if err != nil {
		return nil, err
	}

	orientation, arranged := ArrangeLines(lines)
	var base *domain.PageAnnotation
	if hit {
		base = entry.Annotation.Clone()
	}
	merged, _ := uc.merger.Merge(base, orientation, arranged)
	merged.Fingerprint = key

	if cacheUsable {
		put := domain.CacheEntry{
			Fingerprint: key,
			Annotation:  *merged,
			Revision:    entry.Revision + 1,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := uc.cache.Put(ctx, put); err != nil {
			uc.log.Warn("cache_put_degraded", "fingerprint", key, "error", err)
		}
	}

	uc.recordVisit(ctx, doc, pageIndex)
	return merged, nil
}

// SaveEdits commits user proofreading changes for a page the cache already
// knows. Stage results derived from text the edit changed go stale.
func (uc *AnnotatePageUseCase) SaveEdits(ctx context.Context, doc *domain.Document, pageIndex int, regions []domain.Region) (*domain.PageAnnotation, error) {
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
		return nil, domain.WrapError(domain.ErrInvalidInput, "save edits", errors.New("page has no annotation to edit"))
	}

	annotation := entry.Annotation.Clone()
	annotation.Regions = regions
	sourceText := annotation.SourceText()
	for stage, result := range annotation.Stages {
		if result.SourceText != sourceText {
			result.Stale = true
			annotation.Stages[stage] = result
		}
	}

	put := domain.CacheEntry{
		Fingerprint: key,
		Annotation:  *annotation,
		Revision:    entry.Revision + 1,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := uc.cache.Put(ctx, put); err != nil {
		return nil, err
	}
	return annotation, nil
}

// Invalidate drops the cached annotation for one page (user forces
// re-OCR from scratch).
func (uc *AnnotatePageUseCase) Invalidate(ctx context.Context, doc *domain.Document, pageIndex int) error {
	cfg := uc.cfg.Current()
	key, err := domain.Fingerprint(doc.ID, pageIndex, cfg.OCRSignature())
	if err != nil {
		return err
	}
	return uc.cache.Invalidate(ctx, key)
}

// lookup reads the cache, degrading storage failure to a miss. The third
// return reports whether the cache is usable for the subsequent commit.
func (uc *AnnotatePageUseCase) lookup(ctx context.Context, key string) (domain.CacheEntry, bool, bool) {
	entry, hit, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.log.Warn("cache_get_degraded", "fingerprint", key, "error", err)
		return domain.CacheEntry{}, false, false
	}
	return entry, hit, true
}

func (uc *AnnotatePageUseCase) recordVisit(ctx context.Context, doc *domain.Document, pageIndex int) {
	doc.LastPage = pageIndex
	if err := uc.state.Upsert(ctx, doc); err != nil {
		uc.log.Warn("session_state_not_recorded", "document", doc.ID, "error", err)
	}
}
