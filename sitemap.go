package revadops

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/articles"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// BuildURL joins base with escaped path segments and a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	base = strings.TrimRight(base, "/")
	if len(pathSegments) == 0 {
		return base + "/"
	}
	escaped := make([]string, len(pathSegments))
	for i, seg := range pathSegments {
		escaped[i] = url.PathEscape(seg)
	}
	return base + "/" + strings.Join(escaped, "/") + "/"
}

func (a *App) renderSitemap(c echo.Context, list []articles.Article) error {
	base := a.Config.URL
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
	}
	for _, art := range list {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "articles", art.Slug),
			LastMod: art.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
