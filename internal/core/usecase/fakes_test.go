package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

type staticConfig struct {
	cfg config.Config
}

func (s staticConfig) Current() config.Config { return s.cfg }

type fakeCache struct {
	entries map[string]domain.CacheEntry
	getErr  error
	putErr  error
	puts    []domain.CacheEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.CacheEntry)}
}

func (c *fakeCache) Get(_ context.Context, fingerprint string) (domain.CacheEntry, bool, error) {
	if c.getErr != nil {
		return domain.CacheEntry{}, false, c.getErr
	}
	entry, ok := c.entries[fingerprint]
	return entry, ok, nil
}

func (c *fakeCache) Put(_ context.Context, entry domain.CacheEntry) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.puts = append(c.puts, entry)
	if current, ok := c.entries[entry.Fingerprint]; ok && entry.Revision <= current.Revision {
		return nil
	}
	c.entries[entry.Fingerprint] = entry
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, fingerprint string) error {
	delete(c.entries, fingerprint)
	return nil
}

type fakeState struct {
	upserts []domain.Document
}

func (s *fakeState) Upsert(_ context.Context, doc *domain.Document) error {
	s.upserts = append(s.upserts, *doc)
	return nil
}

func (s *fakeState) Get(_ context.Context, id string) (*domain.Document, error) {
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "state get", domain.ErrDocumentNotFound)
}

type resolvedOcrTask struct {
	lines []domain.OcrLine
	err   error
	done  chan struct{}
}

func (t *resolvedOcrTask) Done() <-chan struct{}             { return t.done }
func (t *resolvedOcrTask) Result() ([]domain.OcrLine, error) { return t.lines, t.err }
func (t *resolvedOcrTask) Cancel()                           {}

type resolvedStageTask struct {
	text string
	err  error
	done chan struct{}
}

func (t *resolvedStageTask) Done() <-chan struct{}   { return t.done }
func (t *resolvedStageTask) Result() (string, error) { return t.text, t.err }
func (t *resolvedStageTask) Cancel()                 {}

// fakeDispatcher resolves tasks synchronously, streaming scripted chunks.
type fakeDispatcher struct {
	ocrLines []domain.OcrLine
	ocrErr   error
	ocrCalls int

	stageChunks []string
	stageErr    error
	lastStage   domain.Stage
	lastReq     ports.CompletionRequest
}

func (d *fakeDispatcher) SubmitOCR(_ context.Context, _ *domain.Document, _ int, _ float64) ports.OcrTask {
	d.ocrCalls++
	task := &resolvedOcrTask{lines: d.ocrLines, err: d.ocrErr, done: make(chan struct{})}
	close(task.done)
	return task
}

func (d *fakeDispatcher) SubmitStage(_ context.Context, _ string, stage domain.Stage, req ports.CompletionRequest, stream ports.StreamFunc) ports.StageTask {
	d.lastStage = stage
	d.lastReq = req

	if stream != nil {
		stream(ports.StreamEvent{Status: domain.StagePending})
	}
	var builder strings.Builder
	if d.stageErr == nil {
		for _, chunk := range d.stageChunks {
			builder.WriteString(chunk)
			if stream != nil {
				stream(ports.StreamEvent{Delta: chunk, Text: builder.String(), Status: domain.StageStreaming})
			}
		}
	}
	task := &resolvedStageTask{text: builder.String(), err: d.stageErr, done: make(chan struct{})}
	close(task.done)
	if stream != nil {
		status := domain.StageComplete
		if d.stageErr != nil {
			status = domain.StageFailed
		}
		stream(ports.StreamEvent{Text: task.text, Status: status, Done: true, Err: d.stageErr})
	}
	return task
}
