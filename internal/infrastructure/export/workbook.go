package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

// Workbook writes a document's proofread annotations to an .xlsx review
// file, one sheet per page. Deleted regions are skipped; stage texts follow
// the region table so a reviewer sees source and transformation together.
type Workbook struct {
	log *slog.Logger
}

func NewWorkbook(log *slog.Logger) *Workbook {
	return &Workbook{log: log}
}

func (w *Workbook) Export(ctx context.Context, doc *domain.Document, pages []ports.PageExport, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(pages) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "export workbook", fmt.Errorf("document %s has no annotated pages", doc.ID))
	}

	sorted := append([]ports.PageExport(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageIndex < sorted[j].PageIndex })

	f := excelize.NewFile()
	defer f.Close()

	for i, page := range sorted {
		sheet := fmt.Sprintf("Page %d", page.PageIndex+1)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writePage(f, sheet, page.Annotation); err != nil {
			return fmt.Errorf("write sheet %s: %w", sheet, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	w.log.Info("workbook_exported", "document", doc.ID, "pages", len(sorted), "path", path)
	return nil
}

func writePage(f *excelize.File, sheet string, annotation domain.PageAnnotation) error {
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Order", "Text", "State", "Confidence"}); err != nil {
		return err
	}

	row := 2
	for _, region := range annotation.Regions {
		if region.EditState == domain.EditStateUserDeleted {
			continue
		}
		cell := fmt.Sprintf("A%d", row)
		values := []any{region.ReadOrder + 1, region.Text, string(region.EditState), region.Confidence}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
		row++
	}

	stages := make([]domain.StageResult, 0, len(annotation.Stages))
	for _, result := range annotation.Stages {
		stages = append(stages, result)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })

	row++
	for _, result := range stages {
		label := string(result.Stage)
		if result.Stale {
			label += " (stale)"
		}
		cell := fmt.Sprintf("A%d", row)
		values := []any{label, result.Text, string(result.Status), ""}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
		row++
	}
	return nil
}
