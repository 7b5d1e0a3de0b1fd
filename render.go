package revadops

import (
	"context"
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!doctype html><html lang="en"><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+`</title></head><body>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func text(tag, s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<"+tag+">"+templ.EscapeString(s)+"</"+tag+">")
		return err
	})
}

// AdminLogin is the admin sign-in form. The CSRF token is posted back as _csrf.
func AdminLogin(siteName string, showError bool, csrfToken string) templ.Component {
	return page(siteName+" admin", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := text("h1", siteName+" admin").Render(ctx, w); err != nil {
			return err
		}
		if showError {
			if err := text("p", "Wrong password.").Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `<form method="post" action="/admin/login/">`+
			`<input type="hidden" name="_csrf" value="`+templ.EscapeString(csrfToken)+`">`+
			`<input type="password" name="password" autocomplete="current-password" required>`+
			`<button type="submit">Sign in</button></form>`)
		return err
	}))
}

// NotFound is the page for unknown routes.
func NotFound() templ.Component {
	return page("Not found", text("h1", "Page not found"))
}

// ServerError is the page for unexpected failures.
func ServerError() templ.Component {
	return page("Error", text("h1", "Something went wrong"))
}
