package export

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/observability/logging"
)

func TestExportWritesSheetPerPage(t *testing.T) {
	w := NewWorkbook(logging.NewLogger(io.Discard, "test", "error"))
	doc := &domain.Document{ID: "book.pdf@abc", PageCount: 10}
	out := filepath.Join(t.TempDir(), "review.xlsx")

	pages := []ports.PageExport{
		{
			PageIndex: 2,
			Annotation: domain.PageAnnotation{
				Regions: []domain.Region{
					{Text: "乙", ReadOrder: 1, EditState: domain.EditStateUserEdited},
					{Text: "gone", ReadOrder: 2, EditState: domain.EditStateUserDeleted},
				},
			},
		},
		{
			PageIndex: 0,
			Annotation: domain.PageAnnotation{
				Regions: []domain.Region{{Text: "甲", ReadOrder: 0, EditState: domain.EditStateMachine}},
				Stages: map[domain.Stage]domain.StageResult{
					domain.StageVernacular: {Stage: domain.StageVernacular, Text: "translation", Status: domain.StageComplete, SourceText: "甲"},
				},
			},
		},
	}
	if err := w.Export(context.Background(), doc, pages, out); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Page 1" || sheets[1] != "Page 3" {
		t.Fatalf("sheets = %v", sheets)
	}

	text, err := f.GetCellValue("Page 1", "B2")
	if err != nil || text != "甲" {
		t.Fatalf("Page 1 B2 = %q, %v", text, err)
	}
	stageLabel, err := f.GetCellValue("Page 1", "A4")
	if err != nil || stageLabel != "vernacular" {
		t.Fatalf("Page 1 A4 = %q, %v", stageLabel, err)
	}

	edited, err := f.GetCellValue("Page 3", "B2")
	if err != nil || edited != "乙" {
		t.Fatalf("Page 3 B2 = %q, %v", edited, err)
	}
	deleted, _ := f.GetCellValue("Page 3", "B3")
	if deleted != "" {
		t.Fatalf("deleted region exported: %q", deleted)
	}
}

func TestExportWithoutPagesFails(t *testing.T) {
	w := NewWorkbook(logging.NewLogger(io.Discard, "test", "error"))
	doc := &domain.Document{ID: "book.pdf@abc"}
	err := w.Export(context.Background(), doc, nil, filepath.Join(t.TempDir(), "empty.xlsx"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}
