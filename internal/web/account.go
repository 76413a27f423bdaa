package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
)

// index shows the login page, or sends users with a linked account to their dashboard.
func (a *App) index(w http.ResponseWriter, r *http.Request) {
	if _, err := a.account(r); err == nil {
		http.Redirect(w, r, DashboardPath, http.StatusFound)
		return
	}

	var issues []string
	for _, issue := range a.cfg.Check() {
		issues = append(issues, issue.String())
	}
	a.render(w, r, http.StatusOK, "login", map[string]any{"Issues": issues})
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	state, err := a.sessions.IssueState(w)
	if err != nil {
		a.logger.Error("failed to start login", "error", err)
		a.renderError(w, r, http.StatusInternalServerError, errorPage{Title: "No se pudo iniciar sesión", Detail: err.Error()})
		return
	}
	http.Redirect(w, r, a.linker.AuthCodeURL(state), http.StatusFound)
}

// callback completes the Google consent: the code is exchanged, the channel linked to the current
// user (or a user created for it) and a session started.
func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := ""
	if user := server.CurrentUser(r.Context()); user != nil {
		userID = user.ID()
	}
	retry := errorPage{Next: LoginPath, NextLabel: "Intentar de nuevo"}

	if reason := q.Get("error"); reason != "" {
		a.linker.RecordError(userID, models.OAuthErrorDenied, reason+" "+q.Get("error_description"), r.URL.String())
		retry.Title = "Autorización cancelada"
		retry.Detail = fmt.Sprintf("Google devolvió: %s", reason)
		a.renderError(w, r, http.StatusBadRequest, retry)
		return
	}

	code := q.Get("code")
	if code == "" {
		a.linker.RecordError(userID, models.OAuthErrorNoCode, "callback without authorization code", r.URL.String())
		retry.Title = "No se recibió el código de autorización"
		a.renderError(w, r, http.StatusBadRequest, retry)
		return
	}

	if err := a.sessions.VerifyState(w, r); err != nil {
		a.linker.RecordError(userID, models.OAuthErrorState, err.Error(), r.URL.String())
		retry.Title = "Solicitud de autorización no válida"
		retry.Detail = "El estado de la solicitud no coincide. Vuelve a iniciar sesión."
		a.renderError(w, r, http.StatusBadRequest, retry)
		return
	}

	result, err := a.linker.Link(r.Context(), code, server.CurrentUser(r.Context()))
	if err != nil {
		retry.Title = "No se pudo vincular la cuenta"
		retry.Detail = err.Error()
		if errors.Is(err, shared.ErrNoChannel) {
			retry.Detail = "Esta cuenta de Google no tiene un canal de YouTube."
		}
		a.renderError(w, r, statusOf(err), retry)
		return
	}

	if err := a.sessions.Start(w, result.User.ID(), result.Account.ID()); err != nil {
		a.logger.Error("failed to start session", "user", result.User.Username, "error", err)
		a.renderError(w, r, http.StatusInternalServerError, errorPage{Title: "No se pudo iniciar sesión", Detail: err.Error()})
		return
	}
	http.Redirect(w, r, DashboardPath, http.StatusFound)
}

// logout unlinks the channel and ends the session. Anonymous requests are just redirected.
func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if account, err := a.account(r); err == nil {
		if err := a.linker.Unlink(r.Context(), account); err != nil {
			a.logger.Error("failed to unlink account", "channel", account.ChannelID, "error", err)
		}
	}
	if err := a.sessions.Destroy(w, r); err != nil {
		a.logger.Warn("failed to delete session", "error", err)
	}
	http.Redirect(w, r, HomePath, http.StatusFound)
}

type dashboardData struct {
	Remaining string
	Videos    []services.SearchItem
	Total     int
	APIError  string
	Snapshots []*models.ChannelSnapshot
}

func (a *App) dashboard(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	data := dashboardData{Remaining: account.TimeRemaining(a.now())}
	if account.Authenticated(a.now()) {
		videos, err := a.linker.RecentVideos(r.Context(), account, dashboardFetch)
		if err != nil {
			a.logger.Warn("failed to list channel videos", "channel", account.ChannelID, "error", err)
			data.APIError = fmt.Sprintf("Error de YouTube API: %v", err)
		} else {
			data.Total = len(videos)
			data.Videos = videos[:min(dashboardShown, len(videos))]
		}
	} else {
		data.APIError = "Token expirado. Reconecta tu cuenta de YouTube."
	}

	if data.Snapshots, err = a.store.Snapshots.Recent(account.ID(), 7); err != nil {
		a.logger.Warn("failed to load snapshots", "channel", account.ChannelID, "error", err)
	}
	a.render(w, r, http.StatusOK, "dashboard", data)
}

// channelStats refreshes the channel counters and records today's snapshot.
func (a *App) channelStats(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		server.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No hay cuenta de YouTube vinculada"})
		return
	}
	if !account.Authenticated(a.now()) {
		server.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success":        false,
			"error":          "Token expirado",
			"token_expirado": true,
		})
		return
	}

	snapshot, err := a.linker.RefreshStats(r.Context(), account)
	if err != nil {
		status := statusOf(err)
		msg := fmt.Sprintf("Error de YouTube API: %v", err)
		switch status {
		case http.StatusGatewayTimeout:
			msg = "Tiempo de espera agotado al consultar YouTube"
		case http.StatusNotFound:
			msg = "Canal no encontrado"
		case http.StatusUnauthorized:
			server.WriteJSON(w, status, map[string]any{"success": false, "error": "Token expirado", "token_expirado": true})
			return
		case http.StatusBadRequest:
			status = http.StatusInternalServerError
		}
		a.logger.Warn("failed to refresh channel stats", "channel", account.ChannelID, "error", err)
		server.WriteJSON(w, status, map[string]any{"success": false, "error": msg})
		return
	}

	server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":                  true,
		"suscriptores":             account.Subscribers,
		"videos":                   account.VideoCount,
		"vistas":                   account.ViewCount,
		"nombre_canal":             account.ChannelName,
		"crecimiento_suscriptores": snapshot.SubscriberGrowth,
		"crecimiento_vistas":       snapshot.ViewGrowth,
		"actualizado":              a.now().Format(displayTime),
		"token_expirado":           false,
	})
}

func (a *App) refreshToken(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		noAccount(w)
		return
	}
	if account.RefreshToken == "" {
		server.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success":      false,
			"error":        "No hay refresh token. Vuelve a conectar tu cuenta.",
			"needs_reauth": true,
		})
		return
	}

	if err := a.linker.Refresh(r.Context(), account); err != nil {
		a.logger.Warn("token refresh rejected", "channel", account.ChannelID, "error", err)
		server.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success":      false,
			"error":        "No se pudo renovar el token. Vuelve a conectar tu cuenta.",
			"needs_reauth": true,
		})
		return
	}

	server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Token renovado",
		"expira_en": account.TokenExpiry.Format(displayTime),
	})
}

func (a *App) authStatus(w http.ResponseWriter, r *http.Request) {
	account, err := a.account(r)
	if err != nil {
		server.WriteJSON(w, http.StatusOK, map[string]any{"autenticado": false, "message": "No hay cuenta de YouTube vinculada"})
		return
	}
	server.WriteJSON(w, http.StatusOK, account.Status(a.now()))
}
