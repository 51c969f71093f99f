package usecase

import (
	"sort"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// Historical prints mix horizontal and vertical typesetting; the aspect
// ratio of a recognized line is the only orientation signal the OCR engine
// gives us. Lines squarer than these bounds do not vote.
const (
	verticalAspectMax   = 0.6
	horizontalAspectMin = 1.4
	filterAspectCutoff  = 1.5
	globalAspectCutoff  = 0.8
)

// ArrangeLines post-processes raw OCR output before merge: detect the
// page's dominant text orientation, drop counter-orientation lines (page
// furniture, marginal stamps), and order the remainder for reading.
// Horizontal pages read top-down then left-right; vertical pages read in
// columns from right to left, top-down within a column.
func ArrangeLines(lines []domain.OcrLine) (domain.Orientation, []domain.OcrLine) {
	if len(lines) == 0 {
		return domain.OrientationHorizontal, nil
	}

	orientation := detectOrientation(lines)
	kept := filterByOrientation(orientation, lines)
	sorted := sortByOrientation(orientation, kept)
	return orientation, sorted
}

func detectOrientation(lines []domain.OcrLine) domain.Orientation {
	vertical, horizontal := 0, 0
	for _, line := range lines {
		switch ar := aspectRatio(line.Polygon); {
		case ar < verticalAspectMax:
			vertical++
		case ar > horizontalAspectMin:
			horizontal++
		}
	}
	if vertical > horizontal {
		return domain.OrientationVertical
	}
	if horizontal > vertical {
		return domain.OrientationHorizontal
	}

	// Tie: fall back to the global extent of all lines together.
	minX, minY, maxX, maxY := globalBounds(lines)
	width, height := maxX-minX, maxY-minY
	if height > 0 && width/height < globalAspectCutoff {
		return domain.OrientationVertical
	}
	return domain.OrientationHorizontal
}

func filterByOrientation(orientation domain.Orientation, lines []domain.OcrLine) []domain.OcrLine {
	kept := make([]domain.OcrLine, 0, len(lines))
	for _, line := range lines {
		ar := aspectRatio(line.Polygon)
		if orientation == domain.OrientationVertical && ar > filterAspectCutoff {
			continue
		}
		if orientation == domain.OrientationHorizontal && ar < filterAspectCutoff {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

func sortByOrientation(orientation domain.Orientation, lines []domain.OcrLine) []domain.OcrLine {
	sorted := append([]domain.OcrLine(nil), lines...)
	if orientation == domain.OrientationHorizontal {
		sort.SliceStable(sorted, func(i, j int) bool {
			_, iMinY, _, _ := sorted[i].Polygon.Bounds()
			_, jMinY, _, _ := sorted[j].Polygon.Bounds()
			if iMinY != jMinY {
				return iMinY < jMinY
			}
			iMinX, _, _, _ := sorted[i].Polygon.Bounds()
			jMinX, _, _, _ := sorted[j].Polygon.Bounds()
			return iMinX < jMinX
		})
		return sorted
	}
	return sortVerticalColumns(sorted)
}

// sortVerticalColumns groups lines into columns by x-center, orders the
// columns right to left, and reads each column top-down.
func sortVerticalColumns(lines []domain.OcrLine) []domain.OcrLine {
	if len(lines) == 0 {
		return lines
	}

	minX, _, maxX, _ := globalBounds(lines)
	threshold := 0.05 * (maxX - minX)
	if threshold < 0.01 {
		threshold = 0.01
	}

	type column struct {
		center float64
		lines  []domain.OcrLine
	}
	var columns []*column
	for _, line := range lines {
		lMinX, _, lMaxX, _ := line.Polygon.Bounds()
		center := (lMinX + lMaxX) / 2

		var matched *column
		for _, col := range columns {
			if abs(center-col.center) <= threshold {
				matched = col
				break
			}
		}
		if matched == nil {
			matched = &column{center: center}
			columns = append(columns, matched)
		}
		matched.lines = append(matched.lines, line)
	}

	for _, col := range columns {
		sort.SliceStable(col.lines, func(i, j int) bool {
			_, iMinY, _, _ := col.lines[i].Polygon.Bounds()
			_, jMinY, _, _ := col.lines[j].Polygon.Bounds()
			return iMinY < jMinY
		})
	}
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i].center > columns[j].center
	})

	out := make([]domain.OcrLine, 0, len(lines))
	for _, col := range columns {
		out = append(out, col.lines...)
	}
	return out
}

func aspectRatio(p domain.Polygon) float64 {
	minX, minY, maxX, maxY := p.Bounds()
	w, h := maxX-minX, maxY-minY
	if h <= 0 {
		return 10
	}
	return w / h
}

func globalBounds(lines []domain.OcrLine) (minX, minY, maxX, maxY float64) {
	first := true
	for _, line := range lines {
		lMinX, lMinY, lMaxX, lMaxY := line.Polygon.Bounds()
		if first {
			minX, minY, maxX, maxY = lMinX, lMinY, lMaxX, lMaxY
			first = false
			continue
		}
		minX = min(minX, lMinX)
		minY = min(minY, lMinY)
		maxX = max(maxX, lMaxX)
		maxY = max(maxY, lMaxY)
	}
	return minX, minY, maxX, maxY
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
