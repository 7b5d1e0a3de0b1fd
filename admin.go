package revadops

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// BulkUpdateRequest is the body of PUT /admin/api/content/.
type BulkUpdateRequest struct {
	Updates []content.UpsertInput `json:"updates"`
}

// BulkUpdateResponse reports every update separately; the request succeeds
// even when some items fail.
type BulkUpdateResponse struct {
	Results []content.ItemResult `json:"results"`
}

// CollectionBody is the body of GET and PUT /admin/api/collections/:collection/.
type CollectionBody struct {
	Items []content.Item `json:"items"`
}

// ReplaceResponse is returned by PUT /admin/api/collections/:collection/.
type ReplaceResponse struct {
	Count   int    `json:"count"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, AdminLogin(a.Config.Name, false, CsrfToken(c)))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"collections":   a.Content.Schemas().Names(),
	})
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	a.Logger.Warn("failed admin login", zap.String("ip", ip))
	return RenderStatus(c, http.StatusUnauthorized, AdminLogin(a.Config.Name, true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// handleGetSection returns the snapshot an admin screen diffs against.
func (a *App) handleGetSection(c echo.Context) error {
	records, err := a.Content.Section(c.Request().Context(), c.Param("section"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, content.FieldsOf(records))
}

func (a *App) handleBulkUpdate(c echo.Context) error {
	var req BulkUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results := a.Content.BulkUpsert(c.Request().Context(), req.Updates)
	return c.JSON(http.StatusOK, BulkUpdateResponse{Results: results})
}

func (a *App) handleDeleteKey(c echo.Context) error {
	if err := a.Content.DeleteKey(c.Request().Context(), c.Param("section"), c.Param("key")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RenameRequest is the body of POST /admin/api/content/:section/:key/rename/.
type RenameRequest struct {
	To string `json:"to"`
}

func (a *App) handleRenameKey(c echo.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := a.Content.RenameKey(c.Request().Context(), c.Param("section"), c.Param("key"), req.To)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "no such key")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleListCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"collections": a.Content.Schemas().Names()})
}

func (a *App) handleGetCollection(c echo.Context) error {
	name := c.Param("collection")
	if _, ok := a.Content.Schemas().Lookup(name); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}
	items, err := a.Content.Collection(c.Request().Context(), name)
	if err != nil {
		return err
	}
	if items == nil {
		items = []content.Item{}
	}
	return c.JSON(http.StatusOK, CollectionBody{Items: items})
}

// handleReplaceCollection replaces a whole collection. Invalid items are
// dropped and counted; a failed transaction leaves the previous items intact.
func (a *App) handleReplaceCollection(c echo.Context) error {
	var body CollectionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := a.Content.ReplaceCollection(c.Request().Context(), c.Param("collection"), body.Items)
	if errors.Is(err, content.ErrTransaction) {
		a.Logger.Error("collection replace failed", zap.String("collection", c.Param("collection")), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ReplaceResponse{
			Count:   res.Count,
			Skipped: res.Skipped,
			Error:   "transaction failed, collection unchanged",
		})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ReplaceResponse{Count: res.Count, Skipped: res.Skipped})
}

func (a *App) handleAdminListArticles(c echo.Context) error {
	f := articles.Filter{
		Tag:      c.QueryParam("tag"),
		Category: c.QueryParam("category"),
	}
	if v := c.QueryParam("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "published must be a boolean")
		}
		f.PublishedOnly = published
	}
	list, err := a.Articles.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, articles.ListResponse{Articles: list})
}

func (a *App) handleAdminGetArticle(c echo.Context) error {
	art, err := a.Articles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, art)
}

func (a *App) handleAdminCreateArticle(c echo.Context) error {
	var in articles.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	art, err := a.Articles.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, art)
}

func (a *App) handleAdminUpdateArticle(c echo.Context) error {
	var in articles.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	art, err := a.Articles.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, art)
}

func (a *App) handleAdminDeleteArticle(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := a.Articles.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := a.Content.ReplaceCollection(ctx, WidgetsCollection(id), nil); err != nil {
		a.Logger.Warn("clear article widgets", zap.String("id", id), zap.Error(err))
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}
