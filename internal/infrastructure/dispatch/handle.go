package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

// ErrCancelled resolves a handle whose task was cancelled before producing
// a result.
var ErrCancelled = errors.New("task cancelled")

// handle is the shared core of OCR and stage task handles. The first of
// resolve/Cancel wins; a result arriving after cancellation is discarded,
// never delivered.
type handle struct {
	id        string
	cancelFn  context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
	once      sync.Once
	err       error
}

func newHandle(cancel context.CancelFunc) handle {
	return handle{
		id:       uuid.NewString(),
		cancelFn: cancel,
		done:     make(chan struct{}),
	}
}

func (h *handle) ID() string { return h.id }

func (h *handle) Done() <-chan struct{} { return h.done }

// Cancel is best-effort: the in-flight external call is abandoned, not
// forcibly terminated, and no callback fires afterwards.
func (h *handle) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	h.cancelFn()
	h.once.Do(func() {
		h.err = ErrCancelled
		close(h.done)
	})
}

// OcrHandle resolves to the recognized lines of one page.
type OcrHandle struct {
	handle
	lines []domain.OcrLine
}

func (h *OcrHandle) complete(lines []domain.OcrLine, err error) {
	h.once.Do(func() {
		h.lines = lines
		h.err = err
		close(h.done)
	})
}

// Result is valid once Done is closed.
func (h *OcrHandle) Result() ([]domain.OcrLine, error) {
	select {
	case <-h.done:
	default:
		return nil, errors.New("task still running")
	}
	return h.lines, h.err
}

// StageHandle resolves to the final streamed text of one AI stage.
type StageHandle struct {
	handle
	stream ports.StreamFunc
	text   string
}

// deliver forwards one chunk in generation order; it runs on the single
// worker goroutine owning this task, so ordering and exactly-once delivery
// hold by construction. The cancelled check is not atomic with the
// callback: a chunk that has passed the check may still reach the callback
// while a concurrent Cancel returns. No later chunk is delivered, and the
// final Done event never fires after Cancel because Cancel claims the
// handle's once first.
func (h *StageHandle) deliver(event ports.StreamEvent) error {
	if h.cancelled.Load() {
		return ErrCancelled
	}
	if h.stream != nil {
		h.stream(event)
	}
	return nil
}

func (h *StageHandle) complete(text string, err error) {
	if h.cancelled.Load() {
		return
	}
	h.once.Do(func() {
		h.text = text
		h.err = err
		close(h.done)
		if h.stream != nil {
			status := domain.StageComplete
			if err != nil {
				status = domain.StageFailed
			}
			h.stream(ports.StreamEvent{Text: text, Status: status, Done: true, Err: err})
		}
	})
}

// Result is valid once Done is closed.
func (h *StageHandle) Result() (string, error) {
	select {
	case <-h.done:
	default:
		return "", errors.New("task still running")
	}
	return h.text, h.err
}
