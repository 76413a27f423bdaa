package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

type searchData struct {
	Params         services.SearchParams
	PublishedAfter string
	Orders         []string
	Durations      []string
	Page           *tasks.SearchPage
	History        []*models.SearchRecord
	Error          string
}

// searchParams reads q, max, order, type, publishedAfter (YYYY-MM-DD or RFC 3339) and duration.
func searchParams(q url.Values) services.SearchParams {
	params := services.SearchParams{
		Query:    q.Get("q"),
		Order:    q.Get("order"),
		Type:     q.Get("type"),
		Duration: q.Get("duration"),
	}
	params.MaxResults, _ = strconv.Atoi(q.Get("max"))
	if raw := q.Get("publishedAfter"); raw != "" {
		if t, err := time.Parse(models.DateLayout, raw); err == nil {
			params.PublishedAfter = t
		} else if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.PublishedAfter = t
		}
	}
	return params.Normalize()
}

// search refreshes the token first so an expired link shows an error page instead of an empty result.
func (a *App) search(w http.ResponseWriter, r *http.Request) {
	user := server.CurrentUser(r.Context())
	account, err := a.account(r)
	if err != nil {
		a.renderError(w, r, http.StatusBadRequest, errorPage{
			Title: "Cuenta no vinculada", Next: LoginPath, NextLabel: "Conectar con YouTube",
		})
		return
	}
	if err := a.linker.EnsureFresh(r.Context(), account); err != nil {
		a.renderError(w, r, http.StatusUnauthorized, errorPage{
			Title: "Sesión de YouTube expirada", Detail: err.Error(), Next: LoginPath, NextLabel: "Reconectar",
		})
		return
	}

	data := searchData{
		Params:    searchParams(r.URL.Query()),
		Orders:    services.SearchOrders,
		Durations: services.SearchDurations,
	}
	if !data.Params.PublishedAfter.IsZero() {
		data.PublishedAfter = data.Params.PublishedAfter.Format(models.DateLayout)
	}

	if data.Params.Query != "" {
		page, err := a.library.Search(r.Context(), user, data.Params)
		if err != nil {
			a.logger.Warn("search failed", "user", user.Username, "query", data.Params.Query, "error", err)
			data.Error = "Error en la búsqueda: " + err.Error()
		} else {
			data.Page = page
			data.History = page.History
		}
	}
	if data.History == nil {
		if data.History, err = a.store.Searches.Recent(user.ID(), tasks.RecentSearches); err != nil {
			a.logger.Warn("failed to load search history", "user", user.Username, "error", err)
		}
	}
	a.render(w, r, http.StatusOK, "search", data)
}

type saveRequest struct {
	VideoID string `json:"video_id"`
	Title   string `json:"titulo"`
}

func (a *App) saveVideo(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "JSON no válido"})
		return
	}

	saved, err := a.library.Save(r.Context(), server.CurrentUser(r.Context()), req.VideoID, req.Title)
	switch {
	case errors.Is(err, shared.ErrMissingArgument):
		server.WriteJSON(w, http.StatusOK, map[string]any{"success": false, "error": "ID de video requerido"})
	case errors.Is(err, shared.ErrAlreadySaved):
		server.WriteJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"error":    "Ya tienes este video guardado",
			"video_id": strings.TrimSpace(req.VideoID),
		})
	case err != nil:
		a.writeError(w, r, err)
	default:
		server.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"id":      saved.ID(),
			"titulo":  saved.Title,
			"message": "Video guardado",
		})
	}
}

type libraryData struct {
	Filter     models.LibraryFilter
	Videos     []*models.SavedVideo
	Totals     models.LibraryTotals
	Categories []string
	Pager      pager
}

func pageNumber(q url.Values) int {
	n, err := strconv.Atoi(q.Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (a *App) library(w http.ResponseWriter, r *http.Request) {
	user := server.CurrentUser(r.Context())
	q := r.URL.Query()
	data := libraryData{Filter: models.LibraryFilter{
		Search:       strings.TrimSpace(q.Get("buscar")),
		CategoryID:   q.Get("categoria"),
		FavoriteOnly: q.Get("favorito") == "true",
	}}

	videos, page, err := a.store.Videos.Filter(user.ID(), data.Filter, pageNumber(q), repositories.LibraryPageSize)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data.Videos = videos

	if data.Totals, err = a.store.Videos.Totals(user.ID(), data.Filter); err != nil {
		a.fail(w, r, err)
		return
	}
	if data.Categories, err = a.store.Videos.Categories(user.ID()); err != nil {
		a.fail(w, r, err)
		return
	}

	filters := url.Values{}
	for _, key := range []string{"buscar", "categoria", "favorito"} {
		if v := q.Get(key); v != "" {
			filters.Set(key, v)
		}
	}
	data.Pager = newPager(page, filters)
	a.render(w, r, http.StatusOK, "library", data)
}

// fail renders the generic error page for storage errors.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	a.renderError(w, r, http.StatusInternalServerError, errorPage{Title: "Error interno", Detail: err.Error()})
}

// savedVideo loads the {id} path value, scoped to the current user.
func (a *App) savedVideo(r *http.Request) (*models.SavedVideo, error) {
	return a.store.Videos.GetForUser(server.CurrentUser(r.Context()).ID(), r.PathValue("id"))
}

type detailData struct {
	Video   *models.SavedVideo
	Related []*models.SavedVideo
	Stats   []*models.VideoStat
}

// videoDetail refreshes the video on a best effort basis before showing it.
func (a *App) videoDetail(w http.ResponseWriter, r *http.Request) {
	user := server.CurrentUser(r.Context())
	video, err := a.savedVideo(r)
	if errors.Is(err, shared.ErrNotFound) {
		a.renderError(w, r, http.StatusNotFound, errorPage{Title: "Video no encontrado", Next: "/mis-videos/", NextLabel: "Mis videos"})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.library.Refresh(r.Context(), user, video); err != nil {
		a.logger.Debug("showing stored details", "video", video.VideoID, "error", err)
	}

	data := detailData{Video: video}
	if data.Related, err = a.store.Videos.Related(video, relatedVideos); err != nil {
		a.logger.Warn("failed to load related videos", "video", video.VideoID, "error", err)
	}
	if data.Stats, err = a.store.Stats.Recent(video.ID(), statHistory); err != nil {
		a.logger.Warn("failed to load video stats", "video", video.VideoID, "error", err)
	}
	a.render(w, r, http.StatusOK, "detail", data)
}

func (a *App) refreshVideo(w http.ResponseWriter, r *http.Request) {
	video, err := a.savedVideo(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	account, err := a.account(r)
	if err != nil {
		noAccount(w)
		return
	}
	if !account.Authenticated(a.now()) && account.RefreshToken == "" {
		server.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "error": "Token expirado", "needs_reauth": true,
		})
		return
	}

	if err := a.library.Refresh(r.Context(), server.CurrentUser(r.Context()), video); err != nil {
		a.writeError(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"titulo":      video.Title,
		"vistas":      video.Views,
		"likes":       video.Likes,
		"comentarios": video.Comments,
		"duracion":    video.Duration,
		"actualizado": a.now().Format(displayTime),
		"message":     "Video actualizado",
	})
}

func (a *App) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	video, err := a.savedVideo(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	video.Favorite = !video.Favorite
	if err := a.store.Videos.Update(video); err != nil {
		a.writeError(w, r, err)
		return
	}

	msg := "Eliminado de favoritos"
	if video.Favorite {
		msg = "Agregado a favoritos"
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "favorito": video.Favorite, "message": msg})
}

func (a *App) deleteVideo(w http.ResponseWriter, r *http.Request) {
	video, err := a.savedVideo(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.Videos.Delete(video.ID()); err != nil {
		a.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Video eliminado"})
}

// saveNotes accepts the notas field as a form value or a JSON body.
func (a *App) saveNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		server.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "error": "Método no permitido"})
		return
	}

	video, err := a.savedVideo(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var notes string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Notes string `json:"notas"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "JSON no válido"})
			return
		}
		notes = body.Notes
	} else {
		notes = r.FormValue("notas")
	}

	video.Notes = strings.TrimSpace(notes)
	if err := a.store.Videos.Update(video); err != nil {
		a.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notas guardadas"})
}
