package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

// ExportUseCase collects every cached annotation of a document and hands
// them to the exporter. Pages never recognized are simply absent from the
// output; a cache read failure on one page skips it with a warning rather
// than losing the rest.
type ExportUseCase struct {
	cfg      ConfigSource
	cache    ports.AnnotationCache
	exporter ports.AnnotationExporter
	log      *slog.Logger
}

func NewExportUseCase(cfg ConfigSource, cache ports.AnnotationCache, exporter ports.AnnotationExporter, log *slog.Logger) *ExportUseCase {
	return &ExportUseCase{cfg: cfg, cache: cache, exporter: exporter, log: log}
}

func (uc *ExportUseCase) Export(ctx context.Context, doc *domain.Document, path string) (int, error) {
	cfg := uc.cfg.Current()
	signature := cfg.OCRSignature()

	var pages []ports.PageExport
	for pageIndex := 0; pageIndex < doc.PageCount; pageIndex++ {
		key, err := domain.Fingerprint(doc.ID, pageIndex, signature)
		if err != nil {
			return 0, err
		}
		entry, hit, err := uc.cache.Get(ctx, key)
		if err != nil {
			uc.log.Warn("export_page_skipped", "document", doc.ID, "page", pageIndex, "error", err)
			continue
		}
		if !hit {
			continue
		}
		pages = append(pages, ports.PageExport{PageIndex: pageIndex, Annotation: entry.Annotation})
	}

	if err := uc.exporter.Export(ctx, doc, pages, path); err != nil {
		return 0, err
	}
	return len(pages), nil
}
