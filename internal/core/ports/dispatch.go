package ports

import (
	"context"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// StreamEvent is one delivery on a stage task's callback. Delta carries the
// newly generated text, Text the accumulated result so far, Status the
// stage's lifecycle position (pending on submit, streaming per chunk). The
// final event has Done set, with Err non-nil on failure.
type StreamEvent struct {
	Delta  string
	Text   string
	Status domain.StageStatus
	Done   bool
	Err    error
}

type StreamFunc func(StreamEvent)

// OcrTask is a cancellable reference to an in-flight recognition. After
// Cancel, a late result is discarded and Result reports cancellation.
type OcrTask interface {
	Done() <-chan struct{}
	Result() ([]domain.OcrLine, error)
	Cancel()
}

// StageTask is a cancellable reference to an in-flight AI stage call.
// Stream callbacks are delivered strictly in generation order, never
// duplicated, and never after Cancel.
type StageTask interface {
	Done() <-chan struct{}
	Result() (string, error)
	Cancel()
}

// TaskDispatcher runs OCR and AI calls off the interactive path with
// bounded concurrency and per-document FIFO ordering. The dispatcher never
// writes the cache; committing results is the merge pipeline's job.
type TaskDispatcher interface {
	SubmitOCR(ctx context.Context, doc *domain.Document, pageIndex int, scale float64) OcrTask
	SubmitStage(ctx context.Context, documentID string, stage domain.Stage, req CompletionRequest, stream StreamFunc) StageTask
}
