package ports

import (
	"context"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// PageRenderer rasterizes one page of an opened document. The core never
// parses PDF structure itself; rendering belongs to the shell.
type PageRenderer interface {
	RenderPage(ctx context.Context, doc *domain.Document, pageIndex int, scale float64) ([]byte, error)
}

// OcrEngine recognizes text lines on a rendered page image.
type OcrEngine interface {
	Recognize(ctx context.Context, image []byte) ([]domain.OcrLine, error)
}

// CompletionRequest is one prompt for the LLM collaborator.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserText     string
}

// Completer streams a completion chunk by chunk. onChunk is invoked in
// generation order; returning an error from it aborts the stream.
type Completer interface {
	CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(string) error) error
}

// BlobStore is byte-level storage of named records with atomic replace
// semantics: a reader sees either the old blob or the new one, never a mix.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// AnnotationCache maps fingerprints to durable cache entries. A miss is a
// normal outcome, not an error; storage failure surfaces as
// domain.ErrCacheUnavailable and callers degrade to treat-as-miss.
type AnnotationCache interface {
	Get(ctx context.Context, fingerprint string) (domain.CacheEntry, bool, error)
	Put(ctx context.Context, entry domain.CacheEntry) error
	Invalidate(ctx context.Context, fingerprint string) error
}

// DocumentStateStore persists per-document session state.
type DocumentStateStore interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentDescriber derives identity and page count for a source file.
type DocumentDescriber interface {
	Describe(ctx context.Context, path string) (*domain.Document, error)
}

// PageExport pairs one annotated page with its index for export.
type PageExport struct {
	PageIndex  int
	Annotation domain.PageAnnotation
}

// AnnotationExporter writes a document's annotations to a review file.
type AnnotationExporter interface {
	Export(ctx context.Context, doc *domain.Document, pages []PageExport, path string) error
}
