package i18n

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	// CookieName stores the locale picked with the switcher.
	CookieName = "locale"
	contextKey = "locale"
)

// Middleware resolves the request locale from the lang query parameter, the
// locale cookie, Accept-Language and finally the default, in that order.
func Middleware(s *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(contextKey, s.Resolve(c.Request()))
			return next(c)
		}
	}
}

// Resolve picks the locale for r without consulting an echo context.
func (s *Store) Resolve(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); s.Supported(lang) {
		return lang
	}
	if ck, err := r.Cookie(CookieName); err == nil && s.Supported(ck.Value) {
		return ck.Value
	}
	return s.Match(r.Header.Get("Accept-Language"))
}

// Locale returns the locale stored by Middleware, or DefaultLocale.
func Locale(c echo.Context) string {
	if loc, ok := c.Get(contextKey).(string); ok && loc != "" {
		return loc
	}
	return DefaultLocale
}

// Cookie builds the cookie remembering locale for a year.
func Cookie(locale string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    locale,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
