package domain

import "testing"

func rect(x, y, w, h float64) Polygon {
	return Polygon{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
}

func TestPolygonOverlap(t *testing.T) {
	a := rect(0, 0, 0.2, 0.1)

	if got := a.Overlap(rect(0, 0, 0.2, 0.1)); got != 1.0 {
		t.Fatalf("identical boxes overlap = %g, want 1", got)
	}
	if got := a.Overlap(rect(0.5, 0.5, 0.2, 0.1)); got != 0 {
		t.Fatalf("disjoint boxes overlap = %g, want 0", got)
	}
	// Half-shifted box: intersection 0.1x0.1, union 0.03.
	got := a.Overlap(rect(0.1, 0, 0.2, 0.1))
	if got < 0.32 || got > 0.34 {
		t.Fatalf("half-shifted overlap = %g, want ~1/3", got)
	}
}

func TestPolygonDegenerate(t *testing.T) {
	if !(Polygon{{X: 0, Y: 0}, {X: 1, Y: 1}}).Degenerate() {
		t.Fatal("two points must be degenerate")
	}
	if !rect(0.1, 0.1, 0, 0.2).Degenerate() {
		t.Fatal("zero-width box must be degenerate")
	}
	if rect(0.1, 0.1, 0.2, 0.2).Degenerate() {
		t.Fatal("proper box must not be degenerate")
	}
}

func TestSourceTextSkipsDeletedRegions(t *testing.T) {
	a := &PageAnnotation{Regions: []Region{
		{Text: "甲", ReadOrder: 0, EditState: EditStateMachine},
		{Text: "乙", ReadOrder: 1, EditState: EditStateUserDeleted},
		{Text: "丙", ReadOrder: 2, EditState: EditStateUserEdited},
	}}
	if got := a.SourceText(); got != "甲\n丙" {
		t.Fatalf("SourceText = %q, want machine and edited lines only", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := &PageAnnotation{
		Regions: []Region{{ID: "r1", Text: "甲", Polygon: rect(0, 0, 0.1, 0.1)}},
		Stages:  map[Stage]StageResult{StagePunctuate: {Stage: StagePunctuate, Text: "甲。"}},
	}
	clone := original.Clone()
	clone.Regions[0].Text = "改"
	clone.Regions[0].Polygon[0].X = 0.9
	clone.Stages[StagePunctuate] = StageResult{Stage: StagePunctuate, Text: "changed"}

	if original.Regions[0].Text != "甲" {
		t.Fatal("clone shares region slice with original")
	}
	if original.Regions[0].Polygon[0].X != 0 {
		t.Fatal("clone shares polygon backing array with original")
	}
	if original.Stages[StagePunctuate].Text != "甲。" {
		t.Fatal("clone shares stage map with original")
	}
}
