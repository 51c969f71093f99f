package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Document is one opened source file. A record is created on first open and
// updated on navigation or zoom change; records are never deleted, so a
// document reopened years later finds its prior session state.
type Document struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	PageCount int       `json:"page_count"`
	LastPage  int       `json:"last_page"`
	Zoom      float64   `json:"zoom"`
	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentID derives the stable identity of a source file from its name and
// content hash. Moving the file keeps the identity as long as the bytes match.
func DocumentID(path, contentHash string) string {
	return fmt.Sprintf("%s@%s", filepath.Base(path), contentHash)
}
