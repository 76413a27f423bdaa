package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

const (
	// multipartMemory is kept in memory while parsing, the rest of the file spools to disk.
	multipartMemory = 32 << 20
	// formOverhead allows for the other form fields on top of the file size limit.
	formOverhead = 1 << 20
)

var errNoFile = fmt.Errorf("%w: no video_file in the form", shared.ErrMissingArgument)

type uploadData struct {
	Form       tasks.UploadRequest
	Categories []services.Category
	Privacy    []string
	Recent     []*models.UploadJob
	MaxSize    string
	Extensions []string
	Error      string
}

// categories lists assignable categories, falling back to a fixed set when the API is unavailable.
func (a *App) categories(r *http.Request, account *models.YouTubeAccount) []services.Category {
	categories, err := a.yt.VideoCategories(r.Context(), account.AccessToken, a.cfg.YouTube.RegionCode, a.cfg.YouTube.Language)
	if err != nil || len(categories) == 0 {
		if err != nil {
			a.logger.Debug("using default categories", "error", err)
		}
		return services.DefaultCategories()
	}
	return categories
}

func (a *App) renderUploadForm(w http.ResponseWriter, r *http.Request, status int, account *models.YouTubeAccount, form tasks.UploadRequest, formErr string) {
	if form.CategoryID == "" {
		form.CategoryID = models.DefaultCategoryID
	}
	if form.Privacy == "" {
		form.Privacy = models.PrivacyPrivate
	}

	data := uploadData{
		Form:       form,
		Categories: a.categories(r, account),
		Privacy:    []string{models.PrivacyPrivate, models.PrivacyUnlisted, models.PrivacyPublic},
		MaxSize:    shared.HumanBytes(a.cfg.Uploads.MaxBytes()),
		Extensions: a.cfg.Uploads.AllowedExtensions,
		Error:      formErr,
	}
	var err error
	if data.Recent, err = a.store.Uploads.Recent(account.ID(), recentUploads); err != nil {
		a.logger.Warn("failed to load recent uploads", "channel", account.ChannelID, "error", err)
	}
	a.render(w, r, status, "upload", data)
}

func (a *App) uploadForm(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}
	if err := a.linker.EnsureFresh(r.Context(), account); err != nil {
		a.renderError(w, r, http.StatusUnauthorized, errorPage{
			Title: "Sesión de YouTube expirada", Detail: err.Error(), Next: LoginPath, NextLabel: "Reconectar",
		})
		return
	}
	a.renderUploadForm(w, r, http.StatusOK, account, tasks.UploadRequest{}, "")
}

// readUpload parses the multipart form. The caller closes the returned file.
func (a *App) readUpload(w http.ResponseWriter, r *http.Request) (tasks.UploadRequest, multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Uploads.MaxBytes()+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return tasks.UploadRequest{}, nil, fmt.Errorf("%w: limit is %s", shared.ErrFileTooLarge, shared.HumanBytes(a.cfg.Uploads.MaxBytes()))
		}
		return tasks.UploadRequest{}, nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	req := tasks.UploadRequest{
		Title:       strings.TrimSpace(r.FormValue("titulo")),
		Description: r.FormValue("descripcion"),
		Tags:        r.FormValue("etiquetas"),
		CategoryID:  r.FormValue("categoria"),
		Privacy:     r.FormValue("privacidad"),
	}
	file, header, err := r.FormFile("video_file")
	if err != nil {
		return req, nil, errNoFile
	}
	req.FileName = header.Filename
	req.Size = header.Size
	return req, file, nil
}

// uploadSubmit handles the plain form post and redirects to the job's status.
func (a *App) uploadSubmit(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	req, file, err := a.readUpload(w, r)
	if err != nil {
		a.renderUploadForm(w, r, statusOf(err), account, req, err.Error())
		return
	}
	defer file.Close()

	job, err := a.uploads.Enqueue(r.Context(), account, req, file, nil)
	if err != nil {
		a.renderUploadForm(w, r, statusOf(err), account, req, err.Error())
		return
	}
	http.Redirect(w, r, "/youtube/subir/estado/"+job.ID()+"/", http.StatusSeeOther)
}

func (a *App) uploadAjax(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		server.WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "error": "Método no permitido"})
		return
	}

	account, err := a.account(r)
	if err != nil {
		noAccount(w)
		return
	}
	if !account.Authenticated(a.now()) {
		server.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "error": "Token expirado", "needs_reauth": true,
		})
		return
	}

	req, file, err := a.readUpload(w, r)
	if errors.Is(err, errNoFile) {
		server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No se envió archivo"})
		return
	}
	if err != nil {
		server.WriteJSON(w, statusOf(err), map[string]any{"success": false, "error": "Archivo no válido", "detalle": err.Error()})
		return
	}
	defer file.Close()

	if err := a.uploads.Validate(req.FileName, req.Size); err != nil {
		server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Archivo no válido", "detalle": err.Error()})
		return
	}

	job, err := a.uploads.Enqueue(r.Context(), account, req, file, nil)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"video_id":       job.ID(),
		"estado":         job.Status,
		"estado_display": job.Status.Label(),
		"message":        "Video en cola para subir a YouTube",
	})
}

func (a *App) uploadStatus(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		noAccount(w)
		return
	}

	job, err := a.store.Uploads.GetForAccount(account.ID(), r.PathValue("id"))
	if errors.Is(err, shared.ErrNotFound) {
		server.WriteJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Subida no encontrada"})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"id":               job.ID(),
		"titulo":           job.Title,
		"estado":           job.Status,
		"estado_display":   job.Status.Label(),
		"mensaje_error":    job.ErrorMessage,
		"youtube_video_id": job.YouTubeVideoID,
		"youtube_url":      job.WatchURL(),
		"creado":           job.CreatedAt().Format(displayTime),
		"actualizado":      job.UpdatedAt().Format(displayTime),
	})
}

type uploadsData struct {
	Filter   models.UploadFilter
	Statuses []models.UploadStatus
	Jobs     []*models.UploadJob
	Totals   models.UploadTotals
	Pager    pager
}

func (a *App) myUploads(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	q := r.URL.Query()
	data := uploadsData{
		Filter:   models.UploadFilter{Search: strings.TrimSpace(q.Get("buscar"))},
		Statuses: models.UploadStatuses,
	}
	if status := models.UploadStatus(q.Get("estado")); status.Valid() {
		data.Filter.Status = status
	}

	jobs, page, err := a.store.Uploads.Filter(account.ID(), data.Filter, pageNumber(q), repositories.UploadPageSize)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data.Jobs = jobs
	if data.Totals, err = a.store.Uploads.Totals(account.ID(), data.Filter); err != nil {
		a.fail(w, r, err)
		return
	}

	filters := url.Values{}
	if data.Filter.Search != "" {
		filters.Set("buscar", data.Filter.Search)
	}
	if data.Filter.Status != "" {
		filters.Set("estado", string(data.Filter.Status))
	}
	data.Pager = newPager(page, filters)
	a.render(w, r, http.StatusOK, "uploads", data)
}
