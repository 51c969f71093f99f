package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// Merger reconciles fresh OCR output with an existing page annotation.
// The one rule that must never break: a region the user has edited or
// deleted is preserved verbatim, so re-recognition cannot silently
// overwrite a human correction.
type Merger struct {
	overlapThreshold float64
	log              *slog.Logger
}

func NewMerger(overlapThreshold float64, log *slog.Logger) *Merger {
	if overlapThreshold <= 0 || overlapThreshold > 1 {
		overlapThreshold = 0.5
	}
	return &Merger{overlapThreshold: overlapThreshold, log: log}
}

// Merge produces the annotation resulting from applying fresh OCR lines on
// top of base (which may be nil on first recognition). Region identity
// across re-recognition is approximated by best polygon overlap at or above
// the threshold; below it a fresh line becomes a new machine region.
// Malformed lines are dropped with a warning, never fatally. Merging the
// same lines twice yields the same annotation as merging them once.
func (m *Merger) Merge(base *domain.PageAnnotation, orientation domain.Orientation, fresh []domain.OcrLine) (*domain.PageAnnotation, []string) {
	var warnings []string
	valid := make([]domain.OcrLine, 0, len(fresh))
	for i, line := range fresh {
		if strings.TrimSpace(line.Text) == "" {
			warnings = append(warnings, fmt.Sprintf("line %d: empty text", i))
			continue
		}
		if line.Polygon.Degenerate() {
			warnings = append(warnings, fmt.Sprintf("line %d: degenerate polygon", i))
			continue
		}
		valid = append(valid, line)
	}
	for _, w := range warnings {
		m.log.Warn("merge_dropped_line", "reason", w)
	}

	out := &domain.PageAnnotation{Orientation: orientation}
	var baseRegions []domain.Region
	if base != nil {
		out.Fingerprint = base.Fingerprint
		baseRegions = base.Regions
	}

	claimed := make([]bool, len(baseRegions))
	merged := make([]domain.Region, 0, len(valid))
	for _, line := range valid {
		idx := m.bestMatch(line.Polygon, baseRegions, claimed)
		if idx < 0 {
			merged = append(merged, domain.Region{
				ID:         uuid.NewString(),
				Polygon:    line.Polygon,
				Text:       line.Text,
				Confidence: line.Confidence,
				EditState:  domain.EditStateMachine,
			})
			continue
		}

		claimed[idx] = true
		existing := baseRegions[idx]
		if existing.EditState == domain.EditStateMachine {
			existing.Polygon = line.Polygon
			existing.Text = line.Text
			existing.Confidence = line.Confidence
		}
		// user-edited and user-deleted regions pass through untouched
		merged = append(merged, existing)
	}

	// Unmatched machine regions vanish with re-recognition; unmatched
	// user-touched regions survive at their previous reading position.
	type keptRegion struct {
		region domain.Region
		order  int
	}
	var kept []keptRegion
	for idx, region := range baseRegions {
		if claimed[idx] || region.EditState == domain.EditStateMachine {
			continue
		}
		kept = append(kept, keptRegion{region: region, order: region.ReadOrder})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].order < kept[j].order })
	for _, k := range kept {
		pos := k.order
		if pos > len(merged) {
			pos = len(merged)
		}
		merged = append(merged[:pos], append([]domain.Region{k.region}, merged[pos:]...)...)
	}

	for i := range merged {
		merged[i].ReadOrder = i
	}
	out.Regions = merged

	// Stage results derived from text that no longer matches are stale, not
	// deleted: the reader can still see the old translation and tell it is
	// out of date.
	if base != nil && len(base.Stages) > 0 {
		sourceText := out.SourceText()
		out.Stages = make(map[domain.Stage]domain.StageResult, len(base.Stages))
		for stage, result := range base.Stages {
			if result.SourceText != sourceText {
				result.Stale = true
			}
			out.Stages[stage] = result
		}
	}

	return out, warnings
}

// bestMatch returns the index of the unclaimed base region with the highest
// overlap at or above the threshold, or -1 when none qualifies.
func (m *Merger) bestMatch(polygon domain.Polygon, baseRegions []domain.Region, claimed []bool) int {
	best := -1
	bestOverlap := 0.0
	for idx, region := range baseRegions {
		if claimed[idx] {
			continue
		}
		overlap := polygon.Overlap(region.Polygon)
		if overlap >= m.overlapThreshold && overlap > bestOverlap {
			best = idx
			bestOverlap = overlap
		}
	}
	return best
}
