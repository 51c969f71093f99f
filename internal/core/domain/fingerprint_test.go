package domain

import (
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a, err := Fingerprint("book.pdf@abc", 3, "det=v5|rec=v5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Fingerprint("book.pdf@abc", 3, "det=v5|rec=v5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base, _ := Fingerprint("book.pdf@abc", 3, "det=v5")

	byDoc, _ := Fingerprint("book.pdf@abd", 3, "det=v5")
	if byDoc == base {
		t.Fatal("different document produced the same fingerprint")
	}
	byPage, _ := Fingerprint("book.pdf@abc", 4, "det=v5")
	if byPage == base {
		t.Fatal("different page produced the same fingerprint")
	}
	bySig, _ := Fingerprint("book.pdf@abc", 3, "det=v4")
	if bySig == base {
		t.Fatal("different signature produced the same fingerprint")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Length prefixing keeps adjacent fields from bleeding into each other.
	a, _ := Fingerprint("ab", 1, "c")
	b, _ := Fingerprint("a", 1, "bc")
	if a == b {
		t.Fatal("shifted field boundary produced the same fingerprint")
	}
}

func TestFingerprintRejectsInvalidInput(t *testing.T) {
	if _, err := Fingerprint("", 0, "sig"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty document id, got %v", err)
	}
	if _, err := Fingerprint("doc", -1, "sig"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative page, got %v", err)
	}
}
