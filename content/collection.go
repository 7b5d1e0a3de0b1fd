package content

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// insertBatch bounds the rows per INSERT so a replace stays well under
// SQLite's bound-parameter limit.
const insertBatch = 100

// ReplaceResult is the outcome of ReplaceCollection. On failure Count is the
// number of items the collection still holds, i.e. its size before the call.
// It is zero only when the database cannot be read at all.
type ReplaceResult struct {
	Count    int `json:"count"`
	Skipped  int `json:"skipped"`
	Previous int `json:"previous"`
}

// Collection returns the items of an ordered collection by position.
func (s *Store) Collection(ctx context.Context, collection string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, fields FROM collection_items
WHERE collection = ? ORDER BY position`, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it     Item
			fields string
		)
		if err := rows.Scan(&it.Order, &fields); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &it.Fields); err != nil {
			return nil, fmt.Errorf("decode item fields: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	return items, nil
}

// Count returns how many items a collection holds.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_items WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count collection %s: %w", collection, err)
	}
	return n, nil
}

// ReplaceCollection deletes every item of collection and inserts items in one
// transaction. Items missing a required field are dropped rather than failing
// the batch. Positions are renumbered 1..N after ordering by explicit Order
// (or submission index when Order is unset).
//
// Any failure rolls back and returns a *TransactionError; the collection keeps
// its previous items.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, items []Item) (ReplaceResult, error) {
	schema, ok := s.schemas.Lookup(collection)
	if !ok {
		return ReplaceResult{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	kept, skipped := prepareItems(schema, items)

	unlock := s.lockCollection(collection)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.unchanged(ctx, collection), &TransactionError{Collection: collection, Err: err}
	}

	var before int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_items WHERE collection = ?`, collection).Scan(&before); err != nil {
		_ = tx.Rollback()
		return s.unchanged(ctx, collection), &TransactionError{Collection: collection, Err: err}
	}
	fail := func(err error) (ReplaceResult, error) {
		_ = tx.Rollback()
		s.logger.Error("collection replace rolled back",
			zap.String("collection", collection), zap.Int("items", before), zap.Error(err))
		return ReplaceResult{Count: before, Previous: before}, &TransactionError{Collection: collection, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_items WHERE collection = ?`, collection); err != nil {
		return fail(fmt.Errorf("delete: %w", err))
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	for start := 0; start < len(kept); start += insertBatch {
		end := min(start+insertBatch, len(kept))
		q := sq.Insert("collection_items").Columns("id", "collection", "position", "fields", "created_at")
		for _, it := range kept[start:end] {
			fields, err := json.Marshal(it.Fields)
			if err != nil {
				return fail(fmt.Errorf("encode item %d: %w", it.Order, err))
			}
			q = q.Values(uuid.NewString(), collection, it.Order, string(fields), now)
		}
		query, args, err := q.ToSql()
		if err != nil {
			return fail(fmt.Errorf("build insert: %w", err))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fail(fmt.Errorf("insert: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	s.logger.Info("collection replaced",
		zap.String("collection", collection),
		zap.Int("previous", before), zap.Int("count", len(kept)), zap.Int("skipped", skipped))
	s.notify(collection)
	return ReplaceResult{Count: len(kept), Skipped: skipped, Previous: before}, nil
}

// unchanged reports the collection's current size for a replace that never
// started. The caller's context may be the reason it failed, so it is not used
// for the count.
func (s *Store) unchanged(ctx context.Context, collection string) ReplaceResult {
	n, err := s.Count(context.WithoutCancel(ctx), collection)
	if err != nil {
		s.logger.Error("collection size unknown after failed replace",
			zap.String("collection", collection), zap.Error(err))
		return ReplaceResult{}
	}
	return ReplaceResult{Count: n, Previous: n}
}
