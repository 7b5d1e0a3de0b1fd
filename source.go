package revadops

import (
	"context"
	"fmt"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// WidgetsCollection names the ordered widget collection attached to an article.
// It is keyed by id so a slug rename keeps the widgets.
func WidgetsCollection(articleID string) string {
	return "widgets:" + articleID
}

// localSource serves published articles from this process's database, with
// their widgets attached. It backs both the public API and, when no API base
// URL is configured, the article cache.
type localSource struct {
	articles *articles.Store
	content  *content.Store
}

var _ articles.Source = (*localSource)(nil)

func (s *localSource) ListPublished(ctx context.Context) ([]articles.Article, error) {
	list, err := s.articles.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i], err = s.withWidgets(ctx, list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *localSource) GetPublished(ctx context.Context, slug string) (articles.Article, error) {
	a, err := s.articles.GetPublished(ctx, slug)
	if err != nil {
		return articles.Article{}, err
	}
	return s.withWidgets(ctx, a)
}

func (s *localSource) withWidgets(ctx context.Context, a articles.Article) (articles.Article, error) {
	items, err := s.content.Collection(ctx, WidgetsCollection(a.ID))
	if err != nil {
		return articles.Article{}, fmt.Errorf("load widgets for %s: %w", a.Slug, err)
	}
	if len(items) > 0 {
		a.Widgets = items
	}
	return a, nil
}
