package pdfmeta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// Describer derives a document's identity and page count from the PDF file
// itself. Identity is content-addressed: renaming or moving the file keeps
// its annotations, while replacing its bytes yields a new document.
type Describer struct {
	log *slog.Logger
}

func NewDescriber(log *slog.Logger) *Describer {
	return &Describer{log: log}
}

func (d *Describer) Describe(ctx context.Context, path string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "describe document", err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "describe document", fmt.Errorf("open pdf %s: %w", path, err))
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "describe document", fmt.Errorf("pdf %s has no pages", path))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        domain.DocumentID(path, hash),
		Path:      path,
		PageCount: pages,
		Zoom:      1.0,
		OpenedAt:  now,
		UpdatedAt: now,
	}
	d.log.Info("document_described", "document", doc.ID, "pages", pages)
	return doc, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
