package models

import (
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/shared"
)

// DefaultRefreshMinutes is how often monitored channel statistics are refreshed.
const DefaultRefreshMinutes = 60

// YouTubeAccount is a channel linked to a [User] through OAuth.
type YouTubeAccount struct {
	Base
	UserID         string
	ChannelID      string
	ChannelName    string
	Email          string
	AvatarURL      string
	Description    string
	URL            string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
	Subscribers    int64
	VideoCount     int64
	ViewCount      int64
	Monitoring     bool
	RefreshMinutes int
	LinkedAt       time.Time
}

func NewYouTubeAccount(userID, channelID, channelName string) *YouTubeAccount {
	base := newBase()
	return &YouTubeAccount{
		Base:           base,
		UserID:         userID,
		ChannelID:      channelID,
		ChannelName:    channelName,
		Monitoring:     true,
		RefreshMinutes: DefaultRefreshMinutes,
		LinkedAt:       base.createdAt,
	}
}

func (a *YouTubeAccount) Validate() error {
	switch {
	case a.UserID == "":
		return invalid("account requires a user")
	case strings.TrimSpace(a.ChannelID) == "":
		return invalid("account requires a channel id")
	case a.RefreshMinutes <= 0:
		return invalid("refresh interval must be positive")
	}
	return nil
}

// Authenticated reports whether the stored access token is still valid at now.
func (a *YouTubeAccount) Authenticated(now time.Time) bool {
	return !a.TokenExpiry.IsZero() && now.Before(a.TokenExpiry)
}

// TimeRemaining is a human readable token lifetime ("1h 20m", "15m", "Expired").
func (a *YouTubeAccount) TimeRemaining(now time.Time) string {
	return shared.TimeRemaining(now, a.TokenExpiry)
}

// ChannelURL returns the stored channel URL or the canonical /channel/ URL.
func (a *YouTubeAccount) ChannelURL() string {
	if a.URL != "" {
		return a.URL
	}
	return "https://www.youtube.com/channel/" + a.ChannelID
}

// UpdateStats sets the counters that are supplied, leaving nil ones untouched.
func (a *YouTubeAccount) UpdateStats(subscribers, videos, views *int64) {
	if subscribers != nil {
		a.Subscribers = *subscribers
	}
	if videos != nil {
		a.VideoCount = *videos
	}
	if views != nil {
		a.ViewCount = *views
	}
	a.Touch()
}

// SetToken stores a fresh access token. An empty refresh token keeps the existing one,
// Google only returns it on the first consent.
func (a *YouTubeAccount) SetToken(access, refresh string, expiry time.Time) {
	a.AccessToken = access
	if refresh != "" {
		a.RefreshToken = refresh
	}
	a.TokenExpiry = expiry
	a.Touch()
}

// AccountStatus is the JSON shape of an account's authentication state.
type AccountStatus struct {
	Authenticated   bool      `json:"autenticado"`
	ChannelID       string    `json:"youtube_id"`
	ChannelName     string    `json:"nombre_canal"`
	Email           string    `json:"email"`
	TokenValid      bool      `json:"token_valido"`
	TokenExpiry     time.Time `json:"expira"`
	TimeRemaining   string    `json:"tiempo_restante"`
	HasRefreshToken bool      `json:"tiene_refresh_token"`
	Subscribers     int64     `json:"suscriptores"`
	VideoCount      int64     `json:"videos_publicados"`
	ViewCount       int64     `json:"total_visualizaciones"`
	ChannelURL      string    `json:"url_canal"`
	Monitoring      bool      `json:"monitoreo_activo"`
}

// Status summarises the account for the status endpoint and CLI.
func (a *YouTubeAccount) Status(now time.Time) AccountStatus {
	return AccountStatus{
		Authenticated:   true,
		ChannelID:       a.ChannelID,
		ChannelName:     a.ChannelName,
		Email:           a.Email,
		TokenValid:      a.Authenticated(now),
		TokenExpiry:     a.TokenExpiry,
		TimeRemaining:   a.TimeRemaining(now),
		HasRefreshToken: a.RefreshToken != "",
		Subscribers:     a.Subscribers,
		VideoCount:      a.VideoCount,
		ViewCount:       a.ViewCount,
		ChannelURL:      a.ChannelURL(),
		Monitoring:      a.Monitoring,
	}
}

// DateLayout is how snapshot and stat days are stored.
const DateLayout = "2006-01-02"

// ChannelSnapshot is one day of channel counters.
type ChannelSnapshot struct {
	Base
	AccountID        string
	RecordedOn       string
	Subscribers      int64
	ViewCount        int64
	VideoCount       int64
	SubscriberGrowth int64
	ViewGrowth       int64
}

// SnapshotOf copies the current counters of account for day.
func SnapshotOf(account *YouTubeAccount, day time.Time) *ChannelSnapshot {
	return &ChannelSnapshot{
		Base:        newBase(),
		AccountID:   account.ID(),
		RecordedOn:  day.Format(DateLayout),
		Subscribers: account.Subscribers,
		ViewCount:   account.ViewCount,
		VideoCount:  account.VideoCount,
	}
}

func (s *ChannelSnapshot) Validate() error {
	if s.AccountID == "" {
		return invalid("snapshot requires an account")
	}
	if _, err := time.Parse(DateLayout, s.RecordedOn); err != nil {
		return invalid("snapshot date %q", s.RecordedOn)
	}
	return nil
}

// ComputeGrowth sets growth relative to previous, or zero when there is none.
func (s *ChannelSnapshot) ComputeGrowth(previous *ChannelSnapshot) {
	if previous == nil {
		s.SubscriberGrowth, s.ViewGrowth = 0, 0
		return
	}
	s.SubscriberGrowth = s.Subscribers - previous.Subscribers
	s.ViewGrowth = s.ViewCount - previous.ViewCount
}

// OAuth error kinds recorded in the error log.
const (
	OAuthErrorDenied    = "access_denied"
	OAuthErrorNoCode    = "missing_code"
	OAuthErrorExchange  = "token_exchange"
	OAuthErrorUserInfo  = "userinfo"
	OAuthErrorChannel   = "channel_lookup"
	OAuthErrorRefresh   = "token_refresh"
	OAuthErrorRevoke    = "token_revoke"
	OAuthErrorState     = "invalid_state"
	OAuthErrorPersist   = "persist_account"
	OAuthErrorAPIAccess = "api_access"
)

// OAuthErrorLog records a failed step of the OAuth flow for later diagnosis.
type OAuthErrorLog struct {
	Base
	UserID      string
	Kind        string
	Description string
	RequestURL  string
	APIResponse string
	Resolved    bool
}

func NewOAuthErrorLog(userID, kind, description string) *OAuthErrorLog {
	return &OAuthErrorLog{Base: newBase(), UserID: userID, Kind: kind, Description: description}
}

func (e *OAuthErrorLog) Validate() error {
	if e.Kind == "" {
		return invalid("error kind is required")
	}
	return nil
}
