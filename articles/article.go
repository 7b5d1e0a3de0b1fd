// Package articles holds blog articles: the SQLite store the admin writes to,
// the HTTP client the public site reads through, and the process-wide Cache that
// sits in front of it.
package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

var (
	// ErrNotFound is returned when no published article has the requested slug.
	ErrNotFound = errors.New("articles: not found")
	// ErrConflict matches any *ConflictError.
	ErrConflict = errors.New("articles: conflict")
	// ErrTransient matches any *TransientFetchError.
	ErrTransient = errors.New("articles: transient fetch failure")
)

// ConflictError is returned when a create or rename would reuse a taken slug.
type ConflictError struct {
	Slug string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slug %q is already taken", e.Slug)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransientFetchError reports a network failure, timeout or 5xx from one base URL.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

func (e *TransientFetchError) Is(target error) bool { return target == ErrTransient }

// Article is a blog article as served to the public site.
type Article struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Excerpt     string         `json:"excerpt"`
	Content     string         `json:"content"`
	IsPublished bool           `json:"isPublished"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	ViewCount   int64          `json:"viewCount"`
	Tags        []string       `json:"tags"`
	Category    string         `json:"category,omitempty"`
	Widgets     []content.Item `json:"widgets,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Link returns the public path of the article.
func (a Article) Link() string {
	return "/articles/" + a.Slug + "/"
}

// SameRevision reports whether a and b are the same edit of the same article.
// View counts are ignored; widgets are compared positionally.
func SameRevision(a, b Article) bool {
	if a.ID != b.ID || a.Slug != b.Slug || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if len(a.Widgets) == 0 && len(b.Widgets) == 0 {
		return true
	}
	return !content.CollectionChanged(a.Widgets, b.Widgets)
}

// Input is the admin-editable part of an article.
type Input struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	Tags        []string   `json:"tags"`
	Category    string     `json:"category"`
	IsPublished bool       `json:"isPublished"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (in *Input) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Title)
	} else {
		in.Slug = Slugify(in.Slug)
	}
	if in.Title == "" {
		return &content.ValidationError{Field: "title", Reason: "is required"}
	}
	if in.Slug == "" {
		return &content.ValidationError{Field: "slug", Reason: "is required"}
	}
	in.Category = strings.TrimSpace(in.Category)
	return nil
}

// Source is where the Cache loads published articles from.
type Source interface {
	// ListPublished returns every published article.
	ListPublished(ctx context.Context) ([]Article, error)
	// GetPublished returns one published article or ErrNotFound.
	GetPublished(ctx context.Context, slug string) (Article, error)
}

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// ParseTags splits a comma-delimited tag string (e.g. ",go,web,") into a slice.
func ParseTags(tagString string) []string {
	tagString = strings.Trim(tagString, ",")
	if tagString == "" {
		return nil
	}
	parts := strings.Split(tagString, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func joinTags(tags []string) string {
	normalized := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			normalized = append(normalized, t)
		}
	}
	return "," + strings.Join(normalized, ",") + ","
}
