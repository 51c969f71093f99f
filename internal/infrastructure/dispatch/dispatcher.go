package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/infrastructure/resilience"
	"github.com/kirillkom/scanread/internal/observability/metrics"
)

// Dispatcher runs OCR and AI calls off the interactive path. Concurrency is
// bounded by a global worker semaphore; requests queue FIFO per document so
// a reader flipping pages sees them resolve in a sensible order. The
// dispatcher only produces results through handles; committing them to the
// cache is the annotate pipeline's job, which keeps cancellation from ever
// leaving a partial write.
type Dispatcher struct {
	log       *slog.Logger
	exec      *resilience.Executor
	renderer  ports.PageRenderer
	engine    ports.OcrEngine
	completer ports.Completer
	limiter   *rate.Limiter
	metrics   *metrics.Pipeline

	ctx    context.Context
	cancel context.CancelFunc

	sem    chan struct{}
	mu     sync.Mutex
	queues map[string]*docQueue

	drained chan struct{}
	active  int
}

type docQueue struct {
	tasks   []*task
	running bool
}

type task struct {
	abort func()
	run   func()
}

type Options struct {
	Workers              int
	LLMRequestsPerSecond float64
	Metrics              *metrics.Pipeline
}

func New(renderer ports.PageRenderer, engine ports.OcrEngine, completer ports.Completer, exec *resilience.Executor, opts Options, log *slog.Logger) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	var limiter *rate.Limiter
	if opts.LLMRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LLMRequestsPerSecond), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:       log,
		exec:      exec,
		renderer:  renderer,
		engine:    engine,
		completer: completer,
		limiter:   limiter,
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, workers),
		queues:    make(map[string]*docQueue),
		drained:   make(chan struct{}),
	}
	return d
}

// SubmitOCR renders and recognizes one page under the retry executor.
// Exhausted retries resolve the handle to domain.ErrOcrFailed carrying the
// last underlying error.
func (d *Dispatcher) SubmitOCR(ctx context.Context, doc *domain.Document, pageIndex int, scale float64) ports.OcrTask {
	taskCtx, cancelTask := context.WithCancel(ctx)
	h := &OcrHandle{handle: newHandle(cancelTask)}

	run := func() {
		if taskCtx.Err() != nil {
			h.Cancel()
			return
		}
		start := time.Now()
		d.startTask()

		var lines []domain.OcrLine
		err := d.exec.Execute(taskCtx, "ocr.recognize", func(callCtx context.Context) error {
			image, rerr := d.renderer.RenderPage(callCtx, doc, pageIndex, scale)
			if rerr != nil {
				return fmt.Errorf("render page %d: %w", pageIndex, rerr)
			}
			out, oerr := d.engine.Recognize(callCtx, image)
			if oerr != nil {
				return fmt.Errorf("recognize page %d: %w", pageIndex, oerr)
			}
			lines = out
			return nil
		}, resilience.ClassifyHTTP)
		if err != nil {
			err = domain.WrapError(domain.ErrOcrFailed, fmt.Sprintf("ocr page %d of %s", pageIndex, doc.ID), err)
			d.log.Warn("ocr_task_failed", "document", doc.ID, "page", pageIndex, "task", h.ID(), "error", err)
		}
		h.complete(lines, err)
		d.finishTask("ocr", time.Since(start), err)
	}

	d.enqueue(doc.ID, &task{abort: h.Cancel, run: run})
	return h
}

// SubmitStage runs one AI transformation with streaming delivery. Retries
// apply only until the first chunk reaches the caller; replaying delivered
// text would break the exactly-once callback contract.
func (d *Dispatcher) SubmitStage(ctx context.Context, documentID string, stage domain.Stage, req ports.CompletionRequest, stream ports.StreamFunc) ports.StageTask {
	taskCtx, cancelTask := context.WithCancel(ctx)
	h := &StageHandle{handle: newHandle(cancelTask), stream: stream}
	h.deliver(ports.StreamEvent{Status: domain.StagePending})

	run := func() {
		if taskCtx.Err() != nil {
			h.Cancel()
			return
		}
		start := time.Now()
		d.startTask()

		var builder strings.Builder
		delivered := false
		err := d.waitLimiter(taskCtx)
		if err == nil {
			err = d.exec.Execute(taskCtx, "llm."+string(stage), func(callCtx context.Context) error {
				return d.completer.CompleteStream(callCtx, req, func(delta string) error {
					builder.WriteString(delta)
					delivered = true
					if d.metrics != nil {
						d.metrics.ObserveStreamChunk()
					}
					return h.deliver(ports.StreamEvent{Delta: delta, Text: builder.String(), Status: domain.StageStreaming})
				})
			}, func(callErr error) resilience.ErrorClassification {
				if delivered {
					return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
				}
				return resilience.ClassifyHTTP(callErr)
			})
		}
		if err != nil {
			err = domain.WrapError(domain.ErrAiFailed, string(stage), err)
			d.log.Warn("stage_task_failed", "document", documentID, "stage", stage, "task", h.ID(), "error", err)
		}
		h.complete(builder.String(), err)
		d.finishTask("stage."+string(stage), time.Since(start), err)
	}

	d.enqueue(documentID, &task{abort: h.Cancel, run: run})
	return h
}

// Close cancels outstanding work and waits for running tasks to unwind.
// Queued tasks that never started resolve their handles as cancelled.
func (d *Dispatcher) Close() {
	d.cancel()
	d.mu.Lock()
	for _, q := range d.queues {
		for _, t := range q.tasks {
			t.abort()
		}
		q.tasks = nil
	}
	waiting := d.active > 0
	d.mu.Unlock()
	if waiting {
		<-d.drained
	}
}

func (d *Dispatcher) waitLimiter(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("llm rate limit: %w", err)
	}
	return nil
}

func (d *Dispatcher) enqueue(documentID string, t *task) {
	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		t.abort()
		return
	}
	q, ok := d.queues[documentID]
	if !ok {
		q = &docQueue{}
		d.queues[documentID] = q
	}
	q.tasks = append(q.tasks, t)
	if !q.running {
		q.running = true
		d.active++
		go d.drain(documentID, q)
	}
	d.mu.Unlock()
}

// drain runs one document's tasks strictly in submission order, each under
// the global worker semaphore.
func (d *Dispatcher) drain(documentID string, q *docQueue) {
	defer func() {
		d.mu.Lock()
		d.active--
		if d.active == 0 && d.ctx.Err() != nil {
			close(d.drained)
		}
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			delete(d.queues, documentID)
			d.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		d.mu.Unlock()

		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			t.abort()
			continue
		}
		t.run()
		<-d.sem
	}
}

func (d *Dispatcher) startTask() {
	if d.metrics != nil {
		d.metrics.StartTask()
	}
}

func (d *Dispatcher) finishTask(kind string, duration time.Duration, err error) {
	if d.metrics != nil {
		d.metrics.FinishTask(kind, duration, err)
	}
}
