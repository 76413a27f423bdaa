// Package web serves the ytlink pages and JSON endpoints.
//
// # Routes
//
// Pages are rendered server-side from embedded templates and keep the original URL layout:
//
//	GET  /                          login page
//	GET  /youtube/login/            redirect to Google consent
//	GET  /oauth/callback/           OAuth completion
//	GET  /youtube/dashboard/        channel overview and latest uploads
//	GET  /youtube/estadisticas/     channel statistics (JSON, alias /youtube/stats/)
//	*    /youtube/logout/           unlink and log out
//	*    /youtube/refresh/          token refresh (JSON)
//	GET  /youtube/status/           authentication status (JSON)
//	GET  /youtube/buscar/           video search
//	*    /youtube/subir/            upload form
//	POST /youtube/subir/ajax/       upload (JSON)
//	GET  /youtube/subir/estado/{id}/ upload status (JSON)
//	GET  /youtube/mis-subidos/      upload history
//	POST /videos/guardar/           save a search result (JSON)
//	GET  /mis-videos/               saved videos
//	GET  /video/{id}/               saved video detail
//	POST /video/{action}/{id}/      actualizar, favorito, eliminar, notas (JSON)
//
// Every route but the login flow and /healthz requires a session, see [server.RequireLogin].
// JSON endpoints answer anonymous requests with 401 instead of a redirect.
//
// # Errors
//
// Handlers map sentinel errors from [shared] to status codes with [errors.Is]: expired or missing
// credentials become 401 with needs_reauth, timeouts 504, missing resources 404, validation errors 400.
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

const (
	HomePath      = "/"
	LoginPath     = "/youtube/login/"
	DashboardPath = "/youtube/dashboard/"

	// dashboardFetch is how many channel videos are requested, dashboardShown how many are displayed.
	dashboardFetch = 10
	dashboardShown = 5
	recentUploads  = 5
	relatedVideos  = 4
	statHistory    = 30
)

// Deps are the collaborators of an [App].
type Deps struct {
	Config   *shared.Config
	Store    *repositories.Store
	Linker   *tasks.AccountLinker
	Library  *tasks.LibraryEngine
	Uploads  *tasks.UploadEngine
	YouTube  tasks.YouTubeAPI
	Sessions *server.SessionManager
	Logger   *log.Logger
}

// App is the web application.
type App struct {
	cfg      *shared.Config
	store    *repositories.Store
	linker   *tasks.AccountLinker
	library  *tasks.LibraryEngine
	uploads  *tasks.UploadEngine
	yt       tasks.YouTubeAPI
	sessions *server.SessionManager
	pages    *Templates
	logger   *log.Logger
	now      tasks.Clock
}

func New(d Deps) (*App, error) {
	pages, err := ParseTemplates()
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:      d.Config,
		store:    d.Store,
		linker:   d.Linker,
		library:  d.Library,
		uploads:  d.Uploads,
		yt:       d.YouTube,
		sessions: d.Sessions,
		pages:    pages,
		logger:   d.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source used for token validity checks.
func (a *App) WithClock(now tasks.Clock) *App {
	a.now = now
	return a
}

// Router builds the route table behind logging, panic recovery and session loading.
func (a *App) Router() *server.BasicRouter {
	r := server.NewBasicRouter()
	r.Use(server.Recover(a.logger), server.Logging(a.logger), server.Sessions(a.sessions))

	page := server.RequireLogin(HomePath)
	api := server.RequireLogin("")

	r.HandleFunc(http.MethodGet, "/healthz", a.health)

	r.HandleFunc(http.MethodGet, "/{$}", a.index)
	r.HandleFunc(http.MethodGet, LoginPath+"{$}", a.login)
	r.HandleFunc(http.MethodGet, shared.CallbackPath+"{$}", a.callback)
	r.HandleFunc("", "/youtube/logout/{$}", a.logout)

	r.HandleFunc(http.MethodGet, DashboardPath+"{$}", a.dashboard, page)
	r.HandleFunc(http.MethodGet, "/youtube/estadisticas/{$}", a.channelStats, api)
	r.HandleFunc(http.MethodGet, "/youtube/stats/{$}", a.channelStats, api)
	r.HandleFunc("", "/youtube/refresh/{$}", a.refreshToken, api)
	r.HandleFunc(http.MethodGet, "/youtube/status/{$}", a.authStatus, api)

	r.HandleFunc(http.MethodGet, "/youtube/buscar/{$}", a.search, page)
	r.HandleFunc(http.MethodPost, "/videos/guardar/{$}", a.saveVideo, api)
	r.HandleFunc(http.MethodGet, "/mis-videos/{$}", a.library, page)
	r.HandleFunc(http.MethodGet, "/video/{id}/{$}", a.videoDetail, page)
	r.HandleFunc(http.MethodPost, "/video/actualizar/{id}/{$}", a.refreshVideo, api)
	r.HandleFunc(http.MethodPost, "/video/favorito/{id}/{$}", a.toggleFavorite, api)
	r.HandleFunc(http.MethodPost, "/video/eliminar/{id}/{$}", a.deleteVideo, api)
	r.HandleFunc("", "/video/notas/{id}/{$}", a.saveNotes, api)

	r.HandleFunc(http.MethodGet, "/youtube/subir/{$}", a.uploadForm, page)
	r.HandleFunc(http.MethodPost, "/youtube/subir/{$}", a.uploadSubmit, page)
	r.HandleFunc("", "/youtube/subir/ajax/{$}", a.uploadAjax, api)
	r.HandleFunc(http.MethodGet, "/youtube/subir/estado/{id}/{$}", a.uploadStatus, api)
	r.HandleFunc(http.MethodGet, "/youtube/mis-subidos/{$}", a.myUploads, page)

	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": a.now().Format(time.RFC3339)})
}

// account returns the linked account of the request's user, wrapping [shared.ErrNotFound] when there is none.
func (a *App) account(r *http.Request) (*models.YouTubeAccount, error) {
	user := server.CurrentUser(r.Context())
	if user == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return a.store.Accounts.GetByUser(user.ID())
}

// render writes page, falling back to a plain 500 when the template fails.
func (a *App) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	v := view{User: server.CurrentUser(r.Context()), Data: data}
	if v.User != nil {
		if account, err := a.store.Accounts.GetByUser(v.User.ID()); err == nil {
			v.Account = account
		}
	}
	if err := a.pages.Render(w, status, page, v); err != nil {
		a.logger.Error("failed to render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type errorPage struct {
	Title     string
	Detail    string
	Next      string
	NextLabel string
}

func (a *App) renderError(w http.ResponseWriter, r *http.Request, status int, e errorPage) {
	a.render(w, r, status, "error", e)
}

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrNoRefreshToken),
		errors.Is(err, shared.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNoChannel),
		errors.Is(err, shared.ErrVideoNotFound),
		errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrUnsupportedFile),
		errors.Is(err, shared.ErrFileTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a JSON endpoint with err's status. 401 responses ask the client to link again.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := map[string]any{"success": false, "error": err.Error()}
	if status == http.StatusUnauthorized {
		body["needs_reauth"] = true
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	server.WriteJSON(w, status, body)
}

// noAccount answers JSON endpoints for users without a linked channel.
func noAccount(w http.ResponseWriter) {
	server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Cuenta no vinculada"})
}
