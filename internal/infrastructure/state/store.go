package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/scanread/internal/core/domain"
)

// OpenDB opens the per-user session database, creating its directory when
// missing.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	// A desktop session store has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return db, nil
}

// Store persists per-document session state (current page, zoom). Upserts
// are coalesced: rapid page flipping stages records in memory and a
// debounce timer writes them in one batch. Close flushes on every exit
// path.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]domain.Document
	timer   *time.Timer
	closed  bool
}

func NewStore(db *sql.DB, debounce time.Duration, log *slog.Logger) *Store {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Store{
		db:       db,
		log:      log,
		debounce: debounce,
		pending:  make(map[string]domain.Document),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	page_count INTEGER NOT NULL,
	last_page INTEGER NOT NULL DEFAULT 0,
	zoom REAL NOT NULL DEFAULT 1.0,
	opened_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}

// Upsert stages a record and schedules the debounced flush.
func (s *Store) Upsert(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "state upsert", errors.New("missing document id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("state store closed")
	}

	staged := *doc
	staged.UpdatedAt = time.Now().UTC()
	s.pending[doc.ID] = staged

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.log.Error("state_flush_failed", "error", err)
		}
	})
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	if staged, ok := s.pending[id]; ok {
		s.mu.Unlock()
		doc := staged
		return &doc, nil
	}
	s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
SELECT id, path, page_count, last_page, zoom, opened_at, updated_at
FROM documents
WHERE id = ?
`, id)

	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.Path, &doc.PageCount, &doc.LastPage, &doc.Zoom, &doc.OpenedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "state get", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document state: %w", err)
	}
	return &doc, nil
}

// Flush writes all staged records now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make(map[string]domain.Document)
	s.mu.Unlock()

	for _, doc := range batch {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id, path, page_count, last_page, zoom, opened_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	path = excluded.path,
	page_count = excluded.page_count,
	last_page = excluded.last_page,
	zoom = excluded.zoom,
	updated_at = excluded.updated_at
`, doc.ID, doc.Path, doc.PageCount, doc.LastPage, doc.Zoom, doc.OpenedAt, doc.UpdatedAt)
		if err != nil {
			// Restage so a later flush can retry.
			s.mu.Lock()
			if _, ok := s.pending[doc.ID]; !ok {
				s.pending[doc.ID] = doc
			}
			s.mu.Unlock()
			return fmt.Errorf("upsert document state %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Close stops the debounce timer, flushes staged records, and closes the
// database.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	flushErr := s.Flush(ctx)
	if err := s.db.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("close state db: %w", err)
	}
	return flushErr
}
