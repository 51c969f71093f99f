package localfs

import (
	"context"
	"errors"
	"io/fs"
	"testing"
)

func TestWriteReadRemoveRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "entry.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := store.Read(ctx, "entry.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("read back %q", data)
	}

	if err := store.Remove(ctx, "entry.json"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Read(ctx, "entry.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("read after remove = %v, want fs.ErrNotExist", err)
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "k", []byte("old")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Write(ctx, "k", []byte("new")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := store.Read(ctx, "k")
	if err != nil || string(data) != "new" {
		t.Fatalf("read = %q, %v", data, err)
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Remove(context.Background(), "never-written"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../outside", "a/b", `a\b`} {
		if err := store.Write(ctx, key, []byte("x")); err == nil {
			t.Fatalf("key %q accepted", key)
		}
		if _, err := store.Read(ctx, key); err == nil {
			t.Fatalf("key %q accepted on read", key)
		}
	}
}
