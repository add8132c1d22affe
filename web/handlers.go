package web

import (
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"repricelab/api"
	"repricelab/domain"
	"repricelab/i18n"
)

// DefaultBoard is shown on /admin/kanban without a board parameter.
const DefaultBoard = "demo"

// Options holds what the site needs. Notifier and BackendURL are optional.
type Options struct {
	Messages   *i18n.Store
	Auth       api.Authenticator
	Boards     api.Boards
	Notifier   api.Notifier
	BackendURL *url.URL
	Logger     *log.Logger
	Now        func() time.Time
}

type site struct {
	Options
	static fs.FS
}

type localeLink struct {
	Code    string
	Name    string
	Current bool
}

type pageData struct {
	Locale    string
	Locales   []localeLink
	Path      string
	TitleKey  string
	BodyClass string
	User      string
	Year      int
	Page      any
}

type dashboardPage struct {
	Active   string
	Features []dashboardFeature
}

type kanbanTask struct {
	domain.Task
	Late bool
}

type kanbanColumn struct {
	Status domain.Status
	Key    string
	Tasks  []kanbanTask
}

type kanbanPage struct {
	Board   domain.Board
	Columns []kanbanColumn
}

type loginPage struct {
	Failed bool
}

// Register installs the renderer, the validator and every site route.
func Register(e *echo.Echo, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	renderer, err := NewRenderer(ContentFS, opts.Messages)
	if err != nil {
		return err
	}
	static, err := fs.Sub(ContentFS, "static")
	if err != nil {
		return err
	}
	e.Renderer = renderer
	if e.Validator == nil {
		e.Validator = newFormValidator()
	}
	s := &site{Options: opts, static: static}

	e.Use(i18n.Middleware(opts.Messages))

	e.GET("/", s.page("home", "nav.home", func(echo.Context) any { return map[string]any{"Features": features} }))
	e.GET("/features", s.page("features", "nav.features", func(echo.Context) any { return map[string]any{"Features": features} }))
	e.GET("/pricing", s.page("pricing", "nav.pricing", func(echo.Context) any { return map[string]any{"Plans": plans} }))
	e.GET("/contact", s.contactForm)
	e.POST("/contact", s.submitContact)
	for slug, lp := range legalPages {
		e.GET("/"+slug, s.page("legal", lp.TitleKey, func(echo.Context) any { return lp }))
	}
	e.GET("/login", s.login)
	e.GET("/logout", s.logout)
	e.GET("/locale/:lang", s.switchLocale)
	e.GET("/sw.js", s.serviceWorker)
	e.StaticFS("/static", static)

	guard := api.RequireAuth(opts.Auth, api.FromCookie, redirectToLogin)
	dash := e.Group("/dashboard", guard)
	dash.GET("", s.dashboard)
	dash.GET("/:feature", s.comingSoon)
	e.GET("/admin/kanban", s.kanban, guard)

	if opts.BackendURL != nil {
		e.Group("/api", NewBackendProxy(opts.BackendURL, opts.Logger))
	}
	return nil
}

func redirectToLogin(c echo.Context, _ error) error {
	next := c.Request().URL.RequestURI()
	return c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(next))
}

func (s *site) data(c echo.Context, titleKey string, page any) *pageData {
	locale := i18n.Locale(c)
	links := make([]localeLink, 0, len(s.Messages.Locales()))
	for _, code := range s.Messages.Locales() {
		links = append(links, localeLink{
			Code:    code,
			Name:    s.Messages.T(code, "locale.name"),
			Current: code == locale,
		})
	}
	user := api.UserID(c)
	if user == "" {
		user = s.optionalUser(c)
	}
	return &pageData{
		Locale:   locale,
		Locales:  links,
		Path:     c.Request().URL.RequestURI(),
		TitleKey: titleKey,
		User:     user,
		Year:     s.Now().Year(),
		Page:     page,
	}
}

// optionalUser identifies a signed-in visitor on public pages without
// requiring it.
func (s *site) optionalUser(c echo.Context) string {
	ck, err := c.Cookie(api.AccessTokenCookie)
	if err != nil || ck.Value == "" {
		return ""
	}
	id, err := s.Auth.UserIDFromAuthHeader("Bearer " + ck.Value)
	if err != nil {
		return ""
	}
	return id
}

func (s *site) page(name, titleKey string, page func(echo.Context) any) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Render(http.StatusOK, name, s.data(c, titleKey, page(c)))
	}
}

func (s *site) dashboard(c echo.Context) error {
	d := s.data(c, "dashboard.title", dashboardPage{Features: dashboardFeatures})
	d.BodyClass = "dashboard-page"
	return c.Render(http.StatusOK, "dashboard", d)
}

func (s *site) comingSoon(c echo.Context) error {
	f, ok := dashboardFeatureBySlug(c.Param("feature"))
	if !ok {
		return echo.ErrNotFound
	}
	d := s.data(c, f.Key, dashboardPage{Active: f.Slug, Features: dashboardFeatures})
	d.BodyClass = "dashboard-page"
	return c.Render(http.StatusOK, "coming_soon", d)
}

func (s *site) kanban(c echo.Context) error {
	boardID := c.QueryParam("board")
	if boardID == "" {
		boardID = DefaultBoard
	}
	if !domain.ValidBoardID(boardID) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid board id")
	}
	board, err := s.Boards.Board(c.Request().Context(), boardID)
	if err != nil {
		s.Logger.WithError(err).WithField("board", boardID).Error("load board for kanban page")
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	now := s.Now()
	cols := make([]kanbanColumn, 0, len(domain.Columns()))
	for _, col := range domain.Columns() {
		tasks := board.Column(col.Status)
		view := make([]kanbanTask, len(tasks))
		for i, t := range tasks {
			view[i] = kanbanTask{Task: t, Late: t.Overdue(now)}
		}
		cols = append(cols, kanbanColumn{Status: col.Status, Key: "status." + string(col.Status), Tasks: view})
	}
	d := s.data(c, "kanban.title", kanbanPage{Board: board, Columns: cols})
	d.BodyClass = "kanban-page"
	return c.Render(http.StatusOK, "kanban", d)
}

// login accepts a sign-in link carrying a token, stores it in the
// access_token cookie and forwards to next.
func (s *site) login(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.Render(http.StatusOK, "login", s.data(c, "login.title", loginPage{}))
	}
	if _, err := s.Auth.UserIDFromAuthHeader("Bearer " + token); err != nil {
		s.Logger.WithError(err).Debug("rejected sign-in token")
		return c.Render(http.StatusUnauthorized, "login", s.data(c, "login.title", loginPage{Failed: true}))
	}
	c.SetCookie(&http.Cookie{
		Name:     api.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusSeeOther, localPath(c.QueryParam("next"), "/dashboard"))
}

func (s *site) logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{Name: api.AccessTokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *site) switchLocale(c echo.Context) error {
	lang := c.Param("lang")
	if !s.Messages.Supported(lang) {
		return echo.ErrNotFound
	}
	c.SetCookie(i18n.Cookie(lang))
	return c.Redirect(http.StatusSeeOther, localPath(c.QueryParam("next"), "/"))
}

func (s *site) serviceWorker(c echo.Context) error {
	script, err := fs.ReadFile(s.static, "sw.js")
	if err != nil {
		return err
	}
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("Service-Worker-Allowed", "/")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", script)
}

// localPath returns next when it is a path on this site, fallback otherwise.
func localPath(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
