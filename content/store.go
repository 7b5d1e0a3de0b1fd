package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeHook is called after a write that changed the given collection has been
// committed. Hooks must not block.
type ChangeHook func(collection string)

// Store persists section records and ordered collections in SQLite.
type Store struct {
	db      *sql.DB
	schemas *Schemas
	hooks   []ChangeHook
	logger  *zap.Logger
	now     func() time.Time

	replaceMu sync.Mutex
	replacing map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithChangeHook registers a hook fired after successful writes.
func WithChangeHook(h ChangeHook) Option {
	return func(s *Store) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// WithSchemas sets the registry used to validate ordered collections.
func WithSchemas(r *Schemas) Option {
	return func(s *Store) {
		if r != nil {
			s.schemas = r
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps db and runs schema migrations.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:        db,
		schemas:   DefaultSchemas(),
		logger:    zap.NewNop(),
		now:       time.Now,
		replacing: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("content: ensure schema: %w", err)
	}
	return s, nil
}

// Schemas returns the collection schema registry.
func (s *Store) Schemas() *Schemas { return s.schemas }

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS content_records (
    collection TEXT NOT NULL,
    item_key TEXT NOT NULL,
    value TEXT NOT NULL,
    value_type TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    sort_order INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    UNIQUE (collection, item_key)
);
CREATE TABLE IF NOT EXISTS collection_items (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    position INTEGER NOT NULL,
    fields TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_collection_items_collection ON collection_items(collection, position);
`)
	return err
}

// Section returns every record of a collection keyed by item key. A section
// with no records yields an empty map, not an error.
func (s *Store) Section(ctx context.Context, collection string) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_key, value, value_type, metadata, sort_order, updated_at
FROM content_records WHERE collection = ? ORDER BY sort_order, item_key`, collection)
	if err != nil {
		return nil, fmt.Errorf("query section %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		r, err := scanRecord(rows, collection)
		if err != nil {
			return nil, err
		}
		out[r.Key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section %s: %w", collection, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, collection string) (Record, error) {
	var (
		r              Record
		typ, meta, upd string
	)
	if err := row.Scan(&r.Key, &r.Value, &typ, &meta, &r.Order, &upd); err != nil {
		return Record{}, err
	}
	r.Collection = collection
	r.Type = ValueType(typ)
	m, err := decodeMetadata(meta)
	if err != nil {
		return Record{}, err
	}
	r.Metadata = m
	t, err := time.Parse(time.RFC3339Nano, upd)
	if err != nil {
		return Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	r.UpdatedAt = t
	return r, nil
}

// Get returns one record. The boolean is false when it does not exist.
func (s *Store) Get(ctx context.Context, collection, key string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT item_key, value, value_type, metadata, sort_order, updated_at
FROM content_records WHERE collection = ? AND item_key = ?`, collection, key)
	r, err := scanRecord(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return r, true, nil
}

// Upsert validates in and then creates or updates the (collection, key) record.
// Writing an identical payload succeeds without touching updated_at. An Order
// of zero keeps the stored order.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (Record, error) {
	if err := in.Validate(); err != nil {
		return Record{}, err
	}
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return Record{}, &ValidationError{Field: "metadata", Reason: err.Error()}
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO content_records (collection, item_key, value, value_type, metadata, sort_order, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, item_key) DO UPDATE SET
    value = excluded.value,
    value_type = excluded.value_type,
    metadata = excluded.metadata,
    sort_order = CASE WHEN excluded.sort_order = 0 THEN content_records.sort_order ELSE excluded.sort_order END,
    updated_at = excluded.updated_at
WHERE content_records.value <> excluded.value
   OR content_records.value_type <> excluded.value_type
   OR content_records.metadata <> excluded.metadata
   OR (excluded.sort_order <> 0 AND content_records.sort_order <> excluded.sort_order)`,
		in.Collection, in.Key, in.Value, string(in.Type), meta, in.Order, now)
	if err != nil {
		return Record{}, fmt.Errorf("upsert %s/%s: %w", in.Collection, in.Key, err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("upsert %s/%s: %w", in.Collection, in.Key, err)
	}
	rec, ok, err := s.Get(ctx, in.Collection, in.Key)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, fmt.Errorf("upsert %s/%s: record vanished after write", in.Collection, in.Key)
	}
	if changed > 0 {
		s.logger.Debug("content record written",
			zap.String("collection", in.Collection), zap.String("key", in.Key))
		s.notify(in.Collection)
	}
	return rec, nil
}

// ItemResult reports the outcome of one upsert in a bulk update.
type ItemResult struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	err     error
}

// Err returns the underlying error of a failed item.
func (r ItemResult) Err() error { return r.err }

// BulkUpsert applies every input independently and reports per-item results.
// A failing item does not prevent the others from being written.
func (s *Store) BulkUpsert(ctx context.Context, inputs []UpsertInput) []ItemResult {
	results := make([]ItemResult, len(inputs))
	for i, in := range inputs {
		results[i] = ItemResult{Section: in.Collection, Key: in.Key, Success: true}
		if _, err := s.Upsert(ctx, in); err != nil {
			s.logger.Warn("bulk update item failed",
				zap.String("collection", in.Collection), zap.String("key", in.Key), zap.Error(err))
			results[i].Success = false
			results[i].Error = err.Error()
			results[i].err = err
		}
	}
	return results
}

// RenameKey moves a record to a new key within its collection. It fails with a
// ConflictError when the target key is taken.
func (s *Store) RenameKey(ctx context.Context, collection, from, to string) error {
	if to == "" {
		return invalid("key", "is required")
	}
	if from == to {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename %s/%s: %w", collection, from, err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_records WHERE collection = ? AND item_key = ?`,
		collection, to).Scan(&n); err != nil {
		return fmt.Errorf("rename %s/%s: %w", collection, from, err)
	}
	if n > 0 {
		return &ConflictError{Collection: collection, Key: to}
	}
	res, err := tx.ExecContext(ctx, `UPDATE content_records SET item_key = ?, updated_at = ? WHERE collection = ? AND item_key = ?`,
		to, s.now().UTC().Format(time.RFC3339Nano), collection, from)
	if err != nil {
		return fmt.Errorf("rename %s/%s: %w", collection, from, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rename %s/%s: %w", collection, from, err)
	}
	s.notify(collection)
	return nil
}

// DeleteKey removes one record. Deleting a missing record is not an error.
func (s *Store) DeleteKey(ctx context.Context, collection, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_records WHERE collection = ? AND item_key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(collection)
	}
	return nil
}

func (s *Store) notify(collection string) {
	for _, h := range s.hooks {
		h(collection)
	}
}

func (s *Store) lockCollection(collection string) func() {
	s.replaceMu.Lock()
	mu, ok := s.replacing[collection]
	if !ok {
		mu = &sync.Mutex{}
		s.replacing[collection] = mu
	}
	s.replaceMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
