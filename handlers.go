package revadops

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// handleAPIArticles serves the bulk listing other deployments initialize their
// article cache from. It always reads the local store.
func (a *App) handleAPIArticles(c echo.Context) error {
	list, err := a.local.ListPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, articles.ListResponse{Articles: list})
}

func (a *App) handleAPIArticle(c echo.Context) error {
	art, err := a.local.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, art)
}

// handleArticleView counts a page view. It bypasses the cache and never
// invalidates it.
func (a *App) handleArticleView(c echo.Context) error {
	slug := c.Param("slug")
	if !a.viewLimiter.Allow(c.RealIP() + "|" + slug) {
		return c.NoContent(http.StatusTooManyRequests)
	}
	n, err := a.Articles.IncrementViews(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"viewCount": n})
}

// handleArticle is the public article read: cache first, then one direct fetch.
// After a cached snapshot is flushed it is checked against the source so the
// next reader sees any edit made by another process. A direct fetch is already
// fresh and is not fetched again.
func (a *App) handleArticle(c echo.Context) error {
	slug := c.Param("slug")
	ctx := c.Request().Context()

	art, origin := a.Cache.Get(ctx, slug)
	if origin == articles.OriginNone {
		return echo.NewHTTPError(http.StatusNotFound, "article not found")
	}
	if err := c.JSON(http.StatusOK, art); err != nil {
		return err
	}
	c.Response().Flush()
	if origin != articles.OriginCache {
		return nil
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.ReconcileTimeout)
	defer cancel()
	if fresh, ok := a.Cache.Reconcile(rctx, slug); ok && !articles.SameRevision(art, fresh) {
		a.Logger.Info("served stale article, cache reconciled",
			zap.String("slug", slug), zap.Time("served", art.UpdatedAt), zap.Time("fresh", fresh.UpdatedAt))
	}
	return nil
}

// handleSitemap lists published articles from the cache. When an invalidation
// discards the load, one more attempt is made before reading the source
// directly, and that response is not cached downstream.
func (a *App) handleSitemap(c echo.Context) error {
	ctx := c.Request().Context()
	for range 2 {
		if err := a.Cache.Initialize(ctx); err != nil {
			return err
		}
		if a.Cache.State() == articles.Ready {
			return a.renderSitemap(c, a.Cache.List())
		}
	}
	list, err := a.source.ListPublished(ctx)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return a.renderSitemap(c, list)
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/admin/api/") ||
		strings.HasPrefix(path, "/articles/")
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, articles.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, content.ErrValidation), errors.Is(err, content.ErrUnknownCollection):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, articles.ErrConflict), errors.Is(err, content.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, articles.ErrTransient):
		return http.StatusBadGateway, "upstream unavailable"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= 500 {
		a.Logger.Error("server error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}

	if isAPIPath(c.Request().URL.Path) {
		_ = c.JSON(code, map[string]string{"error": msg})
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, NotFound())
	case code >= 500:
		_ = RenderStatus(c, code, ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
