package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"booklisting/internal/models"
)

func newStore(t *testing.T) *DocumentStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDocumentStore(db)
}

func TestCreateRecordAssignsIDAndTimestamp(t *testing.T) {
	store := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	listing := &models.Listing{
		Fields:      map[string]any{"title": "Dune", "price": 250.0},
		Images:      []string{"https://cdn.test/a", "https://cdn.test/b"},
		SubmitterID: "u1",
	}
	ctx := context.Background()
	id, err := store.CreateRecord(ctx, models.ListingsCollection, listing)
	if err != nil || id == "" {
		t.Fatalf("create: id=%q err=%v", id, err)
	}

	var got models.Listing
	if err := store.GetRecord(ctx, models.ListingsCollection, id, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.CreatedAt == nil || !got.CreatedAt.Equal(fixed) {
		t.Fatalf("server fields missing: %+v", got)
	}
	if len(got.Images) != 2 || got.Images[1] != "https://cdn.test/b" || got.Fields["title"] != "Dune" {
		t.Fatalf("record body mismatch: %+v", got)
	}
	if n, _ := store.CountRecords(ctx, models.ListingsCollection); n != 1 {
		t.Fatalf("expected one record, got %d", n)
	}
}

func TestGetRecordScopedByCollection(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id, err := store.CreateRecord(ctx, "drafts", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var out map[string]any
	if err := store.GetRecord(ctx, models.ListingsCollection, id, &out); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCreateRecordRejectsNonObjects(t *testing.T) {
	store := newStore(t)
	if _, err := store.CreateRecord(context.Background(), "x", []int{1, 2}); err == nil {
		t.Fatalf("expected error for array record")
	}
	if _, err := store.CreateRecord(context.Background(), "", map[string]any{}); err == nil {
		t.Fatalf("expected error for empty collection")
	}
}
