package domain

import (
	"strings"
	"time"
)

type EditState string

const (
	EditStateMachine     EditState = "machine"
	EditStateUserEdited  EditState = "user-edited"
	EditStateUserDeleted EditState = "user-deleted"
)

type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a recognized text outline in normalized page space (0..1).
type Polygon []Point

func (p Polygon) Bounds() (minX, minY, maxX, maxY float64) {
	if len(p) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = p[0].X, p[0].Y
	maxX, maxY = p[0].X, p[0].Y
	for _, pt := range p[1:] {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.X > maxX {
			maxX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}
	return minX, minY, maxX, maxY
}

// Degenerate reports whether the polygon cannot enclose any page area.
func (p Polygon) Degenerate() bool {
	if len(p) < 3 {
		return true
	}
	minX, minY, maxX, maxY := p.Bounds()
	return maxX <= minX || maxY <= minY
}

// Overlap is the intersection-over-union of the axis-aligned bounding boxes
// of two polygons, the region-identity heuristic used across re-recognition.
func (p Polygon) Overlap(other Polygon) float64 {
	aMinX, aMinY, aMaxX, aMaxY := p.Bounds()
	bMinX, bMinY, bMaxX, bMaxY := other.Bounds()

	interW := min(aMaxX, bMaxX) - max(aMinX, bMinX)
	interH := min(aMaxY, bMaxY) - max(aMinY, bMinY)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	union := (aMaxX-aMinX)*(aMaxY-aMinY) + (bMaxX-bMinX)*(bMaxY-bMinY) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// OcrLine is one raw recognized line as delivered by the OCR collaborator,
// before layout post-processing and merge.
type OcrLine struct {
	Polygon    Polygon `json:"polygon"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Region is one recognized text block owned by exactly one page annotation.
// The ID is assigned at first recognition and preserved across
// re-recognition when geometry still matches.
type Region struct {
	ID         string    `json:"id"`
	Polygon    Polygon   `json:"polygon"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	ReadOrder  int       `json:"read_order"`
	EditState  EditState `json:"edit_state"`
}

type Stage string

const (
	StagePunctuate  Stage = "punctuate"
	StageVernacular Stage = "vernacular"
	StageExplain    Stage = "explain"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageStreaming StageStatus = "streaming"
	StageComplete  StageStatus = "complete"
	StageFailed    StageStatus = "failed"
)

// StageResult holds one AI transformation of a page's recognized text.
// SourceText records what the result was derived from; when the merged page
// text drifts away from it the result is marked stale, never deleted.
type StageResult struct {
	Stage      Stage       `json:"stage"`
	Text       string      `json:"text"`
	Status     StageStatus `json:"status"`
	SourceText string      `json:"source_text"`
	Stale      bool        `json:"stale,omitempty"`
	Error      string      `json:"error,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// PageAnnotation is the merged set of regions plus AI stage results for one
// page, addressed by its fingerprint.
type PageAnnotation struct {
	Fingerprint string                `json:"fingerprint"`
	Orientation Orientation           `json:"orientation,omitempty"`
	Regions     []Region              `json:"regions"`
	Stages      map[Stage]StageResult `json:"stages,omitempty"`
}

// SourceText is the page text AI stages consume: every region the user has
// not deleted, in read order, one line per region.
func (a *PageAnnotation) SourceText() string {
	if a == nil {
		return ""
	}
	lines := make([]string, 0, len(a.Regions))
	for _, region := range a.Regions {
		if region.EditState == EditStateUserDeleted {
			continue
		}
		lines = append(lines, region.Text)
	}
	return strings.Join(lines, "\n")
}

func (a *PageAnnotation) Clone() *PageAnnotation {
	if a == nil {
		return nil
	}
	out := &PageAnnotation{
		Fingerprint: a.Fingerprint,
		Orientation: a.Orientation,
		Regions:     make([]Region, len(a.Regions)),
	}
	for i, region := range a.Regions {
		out.Regions[i] = region
		out.Regions[i].Polygon = append(Polygon(nil), region.Polygon...)
	}
	if a.Stages != nil {
		out.Stages = make(map[Stage]StageResult, len(a.Stages))
		for stage, result := range a.Stages {
			out.Stages[stage] = result
		}
	}
	return out
}

// SetStage replaces one stage result, allocating the map on first use.
func (a *PageAnnotation) SetStage(result StageResult) {
	if a.Stages == nil {
		a.Stages = make(map[Stage]StageResult, 1)
	}
	a.Stages[result.Stage] = result
}

// CacheEntry is the durable record for one fingerprint. Revision is a
// logical timestamp: a write with a revision at or below the one already
// stored is a no-op, so a slow retry can never overwrite a newer result.
type CacheEntry struct {
	Fingerprint string         `json:"fingerprint"`
	Annotation  PageAnnotation `json:"annotation"`
	Revision    int64          `json:"revision"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
