package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("record not found")

// DocumentStore keeps JSON records grouped by collection in a single table.
type DocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db, now: time.Now}
}

// CreateRecord assigns an id and a server creation time and inserts the
// record in one statement. The id is only returned once the row exists.
func (s *DocumentStore) CreateRecord(ctx context.Context, collection string, record any) (string, error) {
	if collection == "" {
		return "", errors.New("collection required")
	}
	body, err := toDocument(record)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	createdAt := s.now().UTC()
	body["id"] = id
	body["createdAt"] = createdAt.Format(time.RFC3339Nano)

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, collection, body, created_at) VALUES (?, ?, ?, ?)`,
		id, collection, string(raw), createdAt,
	); err != nil {
		return "", fmt.Errorf("insert record into %s: %w", collection, err)
	}
	return id, nil
}

// GetRecord decodes the stored body into dest.
func (s *DocumentStore) GetRecord(ctx context.Context, collection, id string, dest any) error {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("get record %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	return nil
}

// CountRecords reports how many records a collection holds.
func (s *DocumentStore) CountRecords(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func toDocument(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("record must encode as an object: %w", err)
	}
	if doc == nil {
		return nil, errors.New("record must not be null")
	}
	return doc, nil
}
