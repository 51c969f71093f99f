package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/core/usecase"
	"github.com/kirillkom/scanread/internal/infrastructure/cache"
	"github.com/kirillkom/scanread/internal/infrastructure/dispatch"
	"github.com/kirillkom/scanread/internal/infrastructure/export"
	"github.com/kirillkom/scanread/internal/infrastructure/llm"
	"github.com/kirillkom/scanread/internal/infrastructure/ocr"
	"github.com/kirillkom/scanread/internal/infrastructure/pdfmeta"
	"github.com/kirillkom/scanread/internal/infrastructure/render"
	"github.com/kirillkom/scanread/internal/infrastructure/resilience"
	"github.com/kirillkom/scanread/internal/infrastructure/state"
	"github.com/kirillkom/scanread/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/scanread/internal/observability/metrics"
)

const stateSaveDebounce = 2 * time.Second

// App wires the pipeline once at startup and tears it down in reverse order.
// No ambient singletons: everything a command needs hangs off this struct.
type App struct {
	Config  *config.Manager
	Metrics *metrics.Pipeline

	Describer  ports.DocumentDescriber
	State      ports.DocumentStateStore
	AnnotateUC *usecase.AnnotatePageUseCase
	StageUC    *usecase.RunStageUseCase
	ExportUC   *usecase.ExportUseCase

	dispatcher *dispatch.Dispatcher
	stateStore *state.Store
	closeFn    func()
}

func New(ctx context.Context, manager *config.Manager, log *slog.Logger) (*App, error) {
	cfg := manager.Current()

	blobs, err := localfs.New(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init annotation storage: %w", err)
	}
	annotationCache := cache.New(blobs, log)

	db, err := state.OpenDB(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	stateStore := state.NewStore(db, stateSaveDebounce, log)
	if err := stateStore.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure state schema: %w", err)
	}

	resCfg := resilience.DefaultConfig()
	resCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	exec := resilience.NewExecutor(resCfg)

	ocrClient := ocr.New(cfg.OCREndpoint, ocr.ParamsFromConfig(cfg))
	llmClient := llm.New(cfg.BaseURL, cfg.APIKey)

	pipelineMetrics := metrics.NewPipeline()
	dispatcher := dispatch.New(render.NewFileRenderer(), ocrClient, llmClient, exec, dispatch.Options{
		Workers:              cfg.MaxConcurrentTasks,
		LLMRequestsPerSecond: cfg.LLMRequestsPerSecond,
		Metrics:              pipelineMetrics,
	}, log)

	merger := usecase.NewMerger(cfg.MergeOverlapThreshold, log)
	annotateUC := usecase.NewAnnotatePageUseCase(manager, annotationCache, stateStore, dispatcher, merger, pipelineMetrics, log)
	stageUC := usecase.NewRunStageUseCase(manager, annotationCache, dispatcher, log)
	exportUC := usecase.NewExportUseCase(manager, annotationCache, export.NewWorkbook(log), log)

	return &App{
		Config:  manager,
		Metrics: pipelineMetrics,

		Describer:  pdfmeta.NewDescriber(log),
		State:      stateStore,
		AnnotateUC: annotateUC,
		StageUC:    stageUC,
		ExportUC:   exportUC,

		dispatcher: dispatcher,
		stateStore: stateStore,
		closeFn: func() {
			dispatcher.Close()
			if err := stateStore.Close(context.Background()); err != nil {
				log.Warn("state_store_close_failed", "error", err)
			}
			if err := manager.Close(context.Background()); err != nil {
				log.Warn("config_close_failed", "error", err)
			}
		},
	}, nil
}

// Close drains in-flight tasks, then flushes session state and config.
func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
