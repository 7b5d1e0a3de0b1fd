package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const articleColumns = "id, slug, title, excerpt, content, tags, category, is_published, published_at, view_count, created_at, updated_at"

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists articles in SQLite. It implements Source for in-process use.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Source = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStoreClock overrides time.Now, for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps db and runs schema migrations.
func NewStore(db *sql.DB, opts ...StoreOption) (*Store, error) {
	s := &Store{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("articles: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    excerpt TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT ',',
    category TEXT NOT NULL DEFAULT '',
    is_published INTEGER NOT NULL DEFAULT 0,
    published_at TEXT,
    view_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(is_published, published_at);
`)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var (
		a                  Article
		tags, created, upd string
		published          int
		publishedAt        sql.NullString
	)
	err := row.Scan(&a.ID, &a.Slug, &a.Title, &a.Excerpt, &a.Content, &tags, &a.Category,
		&published, &publishedAt, &a.ViewCount, &created, &upd)
	if err != nil {
		return Article{}, err
	}
	a.Tags = ParseTags(tags)
	a.IsPublished = published == 1
	if publishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, publishedAt.String)
		if err != nil {
			return Article{}, fmt.Errorf("parse published_at: %w", err)
		}
		a.PublishedAt = &t
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Article{}, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, upd); err != nil {
		return Article{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return a, nil
}

// Filter narrows List.
type Filter struct {
	PublishedOnly bool
	Tag           string
	Category      string
}

// List returns articles matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Article, error) {
	q := sq.Select(articleColumns).From("articles")
	if f.PublishedOnly {
		q = q.Where(sq.Eq{"is_published": 1})
	}
	if f.Tag != "" {
		q = q.Where("instr(tags, ?) > 0", joinTags([]string{f.Tag}))
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	q = q.OrderBy("COALESCE(published_at, created_at) DESC", "slug")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	out := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return out, nil
}

// ListPublished returns every published article, newest first.
func (s *Store) ListPublished(ctx context.Context) ([]Article, error) {
	return s.List(ctx, Filter{PublishedOnly: true})
}

// GetPublished returns a published article by slug or ErrNotFound.
func (s *Store) GetPublished(ctx context.Context, slug string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE slug = ? AND is_published = 1`, slug)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

// Get returns an article by id regardless of published status.
func (s *Store) Get(ctx context.Context, id string) (Article, error) {
	return s.get(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryRower, id string) (Article, error) {
	a, err := scanArticle(q.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

func slugTaken(ctx context.Context, tx *sql.Tx, slug, exceptID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE slug = ? AND id <> ?`, slug, exceptID).Scan(&n)
	return n > 0, err
}

// resolvePublishedAt stamps the publish time exactly once. An explicit value
// always wins; otherwise a stored timestamp is kept, including when the article
// is unpublished or republished.
func resolvePublishedAt(stored *time.Time, in Input, now time.Time) *time.Time {
	switch {
	case in.PublishedAt != nil:
		t := in.PublishedAt.UTC()
		return &t
	case stored != nil:
		return stored
	case in.IsPublished:
		return &now
	default:
		return nil
	}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create inserts a new article. Articles start as drafts unless IsPublished is set.
func (s *Store) Create(ctx context.Context, in Input) (Article, error) {
	if err := in.normalize(); err != nil {
		return Article{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	defer tx.Rollback()

	taken, err := slugTaken(ctx, tx, in.Slug, "")
	if err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	if taken {
		return Article{}, &ConflictError{Slug: in.Slug}
	}
	now := s.now().UTC()
	id := "art_" + uuid.NewString()
	_, err = tx.ExecContext(ctx, `INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, in.Slug, in.Title, in.Excerpt, in.Content, joinTags(in.Tags), in.Category,
		boolInt(in.IsPublished), nullTime(resolvePublishedAt(nil, in, now)), formatTime(now), formatTime(now))
	if err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	a, err := s.get(ctx, tx, id)
	if err != nil {
		return Article{}, err
	}
	if err := tx.Commit(); err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	s.logger.Info("article created", zap.String("id", id), zap.String("slug", in.Slug))
	return a, nil
}

// Update replaces the editable fields of an article. The view count is never
// touched; the publish timestamp follows resolvePublishedAt.
func (s *Store) Update(ctx context.Context, id string, in Input) (Article, error) {
	if err := in.normalize(); err != nil {
		return Article{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, fmt.Errorf("update article: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.get(ctx, tx, id)
	if err != nil {
		return Article{}, err
	}
	if in.Slug != existing.Slug {
		taken, err := slugTaken(ctx, tx, in.Slug, id)
		if err != nil {
			return Article{}, fmt.Errorf("update article: %w", err)
		}
		if taken {
			return Article{}, &ConflictError{Slug: in.Slug}
		}
	}
	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `UPDATE articles SET slug = ?, title = ?, excerpt = ?, content = ?, tags = ?,
category = ?, is_published = ?, published_at = ?, updated_at = ? WHERE id = ?`,
		in.Slug, in.Title, in.Excerpt, in.Content, joinTags(in.Tags), in.Category,
		boolInt(in.IsPublished), nullTime(resolvePublishedAt(existing.PublishedAt, in, now)), formatTime(now), id)
	if err != nil {
		return Article{}, fmt.Errorf("update article: %w", err)
	}
	a, err := s.get(ctx, tx, id)
	if err != nil {
		return Article{}, err
	}
	if err := tx.Commit(); err != nil {
		return Article{}, fmt.Errorf("update article: %w", err)
	}
	return a, nil
}

// Delete removes an article by id. Deleting a missing article is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	return err
}

// IncrementViews bumps the view counter of a published article and returns the
// new count. It bypasses every cache and leaves updated_at alone.
func (s *Store) IncrementViews(ctx context.Context, slug string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `UPDATE articles SET view_count = view_count + 1
WHERE slug = ? AND is_published = 1 RETURNING view_count`, slug).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment views %s: %w", slug, err)
	}
	return n, nil
}
