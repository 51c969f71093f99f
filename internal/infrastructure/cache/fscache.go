package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
)

// Store is the persistent annotation cache: one blob per fingerprint,
// written through the atomic blob store. Writes are serialized per key and
// guarded by the entry's logical revision, so a slow retry carrying an old
// result can never clobber a newer one.
type Store struct {
	blobs ports.BlobStore
	log   *slog.Logger

	mu   sync.Mutex
	keys map[string]*keyState
}

type keyState struct {
	mu       sync.Mutex
	revision int64
	known    bool
}

func New(blobs ports.BlobStore, log *slog.Logger) *Store {
	return &Store{
		blobs: blobs,
		log:   log,
		keys:  make(map[string]*keyState),
	}
}

// Get never blocks on external services. A miss is (zero, false, nil);
// storage failure is domain.ErrCacheUnavailable. A blob that fails to parse
// is treated as a miss: caching is an optimization, not a correctness
// requirement.
func (s *Store) Get(ctx context.Context, fingerprint string) (domain.CacheEntry, bool, error) {
	if fingerprint == "" {
		return domain.CacheEntry{}, false, domain.WrapError(domain.ErrInvalidInput, "cache get", errors.New("empty fingerprint"))
	}

	data, err := s.blobs.Read(ctx, blobKey(fingerprint))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.CacheEntry{}, false, nil
		}
		return domain.CacheEntry{}, false, domain.WrapError(domain.ErrCacheUnavailable, "cache get", err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.Warn("cache_entry_unreadable", "fingerprint", fingerprint, "error", err)
		return domain.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put persists an entry unless a newer revision for the same fingerprint
// has already landed, in which case it is a silent no-op.
func (s *Store) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.Fingerprint == "" {
		return domain.WrapError(domain.ErrInvalidInput, "cache put", errors.New("empty fingerprint"))
	}

	state := s.keyState(entry.Fingerprint)
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.known {
		if existing, ok, err := s.Get(ctx, entry.Fingerprint); err == nil && ok {
			state.revision = existing.Revision
		}
		state.known = true
	}
	if entry.Revision <= state.revision {
		s.log.Debug("cache_put_stale_revision",
			"fingerprint", entry.Fingerprint,
			"revision", entry.Revision,
			"current", state.revision,
		)
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.blobs.Write(ctx, blobKey(entry.Fingerprint), data); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "cache put", err)
	}
	state.revision = entry.Revision
	return nil
}

// Invalidate removes one entry; other keys are untouched.
func (s *Store) Invalidate(ctx context.Context, fingerprint string) error {
	if fingerprint == "" {
		return domain.WrapError(domain.ErrInvalidInput, "cache invalidate", errors.New("empty fingerprint"))
	}

	state := s.keyState(fingerprint)
	state.mu.Lock()
	defer state.mu.Unlock()

	if err := s.blobs.Remove(ctx, blobKey(fingerprint)); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "cache invalidate", err)
	}
	state.revision = 0
	state.known = true
	return nil
}

func (s *Store) keyState(fingerprint string) *keyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.keys[fingerprint]
	if !ok {
		state = &keyState{}
		s.keys[fingerprint] = state
	}
	return state
}

func blobKey(fingerprint string) string {
	return fingerprint + ".json"
}
