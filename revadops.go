// Package revadops is the RevAdOps marketing-site backend built with Go, Echo,
// and SQLite. It serves published articles through a read-through cache and
// gives the admin screens a JSON API for section content, ordered collections
// and articles.
//
// Content edits flow through the content package (diff, upsert, atomic
// replace); every successful write invalidates the article cache so the next
// public read reloads it.
package revadops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/storage"
)

// App is the central application. It wires together the stores, the article
// cache, handlers and middleware.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Logger   *zap.Logger
	Content  *content.Store
	Articles *articles.Store
	Cache    *articles.Cache

	db           *sql.DB
	source       articles.Source
	local        *localSource
	loginLimiter *RateLimiter
	viewLimiter  *RateLimiter
	customRoutes []func(*App)
	ownLogger    bool
}

// New creates an App with the given configuration. Call Setup (or Start) before
// serving requests.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Setup opens the database, builds the stores and the article cache, and
// registers middleware and routes.
func (a *App) Setup() error {
	if err := a.Config.validate(); err != nil {
		return err
	}

	if a.Logger == nil {
		logger, err := NewLogger(a.Config.LogLevel, a.Config.LogFormat)
		if err != nil {
			return fmt.Errorf("revadops: init logger: %w", err)
		}
		a.Logger = logger
		a.ownLogger = true
	}

	db, err := storage.Open(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("revadops: open database: %w", err)
	}
	a.db = db

	a.Articles, err = articles.NewStore(db, articles.WithStoreLogger(a.Logger.Named("articles")))
	if err != nil {
		return fmt.Errorf("revadops: init article store: %w", err)
	}

	// Any content write may change what an article renders, widgets included.
	a.Content, err = content.NewStore(db,
		content.WithLogger(a.Logger.Named("content")),
		content.WithChangeHook(a.invalidateArticles),
	)
	if err != nil {
		return fmt.Errorf("revadops: init content store: %w", err)
	}

	a.local = &localSource{articles: a.Articles, content: a.Content}
	if a.source == nil {
		a.source = a.local
		if len(a.Config.APIBaseURLs) > 0 {
			a.source = articles.NewClient(a.Config.APIBaseURLs,
				articles.WithAttemptTimeout(a.Config.AttemptTimeout),
				articles.WithClientLogger(a.Logger.Named("client")),
			)
		}
	}
	a.Cache = articles.NewCache(a.source,
		articles.WithMaxAge(a.Config.cacheMaxAge()),
		articles.WithCacheLogger(a.Logger.Named("cache")),
	)

	a.loginLimiter = NewRateLimiter(a.Config.LoginAttempts, a.Config.LoginWindow)
	a.viewLimiter = NewRateLimiter(a.Config.ViewsPerIP, a.Config.ViewWindow)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start runs Setup and Serve.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	return a.Serve()
}

// Serve warms the article cache and serves until the server is closed. Setup
// must have been called.
func (a *App) Serve() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.Cache.Initialize(ctx); err != nil {
		// Readers retry initialization lazily.
		a.Logger.Warn("article cache warm-up failed", zap.Error(err))
	}
	cancel()

	a.Logger.Info("listening", zap.String("addr", a.Config.Addr))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Public routes
	e.GET("/api/articles/", a.handleAPIArticles)
	e.GET("/api/articles/:slug/", a.handleAPIArticle)
	e.POST("/api/articles/:slug/view/", a.handleArticleView)
	e.GET("/articles/:slug/", a.handleArticle)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Admin session
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	// Admin JSON API
	api := e.Group("/admin/api", requireAdmin)
	api.GET("/content/:section/", a.handleGetSection)
	api.PUT("/content/", a.handleBulkUpdate)
	api.DELETE("/content/:section/:key/", a.handleDeleteKey)
	api.POST("/content/:section/:key/rename/", a.handleRenameKey)
	api.GET("/collections/", a.handleListCollections)
	api.GET("/collections/:collection/", a.handleGetCollection)
	api.PUT("/collections/:collection/", a.handleReplaceCollection)
	api.GET("/articles/", a.handleAdminListArticles)
	api.POST("/articles/", a.handleAdminCreateArticle)
	api.GET("/articles/:id/", a.handleAdminGetArticle)
	api.PUT("/articles/:id/", a.handleAdminUpdateArticle)
	api.DELETE("/articles/:id/", a.handleAdminDeleteArticle)
}

func (a *App) invalidateArticles(collection string) {
	a.Cache.Invalidate()
	a.Logger.Debug("article cache invalidated", zap.String("collection", collection))
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.viewLimiter != nil {
		a.viewLimiter.Stop()
	}
	var err error
	if a.db != nil {
		err = a.db.Close()
	}
	if a.ownLogger && a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return err
}
