package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
)

// maxUsernameSuffix bounds the "_N" suffixes tried before falling back to a timestamp.
const maxUsernameSuffix = 99

// LinkResult is the outcome of a successful OAuth callback.
type LinkResult struct {
	User       *models.User
	Account    *models.YouTubeAccount
	NewUser    bool
	NewAccount bool
}

// AccountLinker ties Google identities to local users and keeps their tokens and channel statistics current.
type AccountLinker struct {
	auth   Authenticator
	yt     YouTubeAPI
	store  *repositories.Store
	logger *log.Logger
	now    Clock
}

func NewAccountLinker(auth Authenticator, yt YouTubeAPI, store *repositories.Store, logger *log.Logger) *AccountLinker {
	return &AccountLinker{auth: auth, yt: yt, store: store, logger: logger, now: utcNow}
}

// WithClock replaces the linker's time source.
func (l *AccountLinker) WithClock(now Clock) *AccountLinker {
	l.now = now
	return l
}

// AuthCodeURL is the Google consent URL for state.
func (l *AccountLinker) AuthCodeURL(state string) string {
	return l.auth.AuthCodeURL(state)
}

// RecordError stores a failed OAuth step in the error log. Storage failures are only logged.
func (l *AccountLinker) RecordError(userID, kind, description, requestURL string) {
	entry := models.NewOAuthErrorLog(userID, kind, description)
	entry.RequestURL = requestURL
	l.record(entry)
}

func (l *AccountLinker) recordErr(userID, kind string, err error) {
	entry := models.NewOAuthErrorLog(userID, kind, err.Error())
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		entry.APIResponse = apiErr.Body
	}
	l.record(entry)
}

func (l *AccountLinker) record(entry *models.OAuthErrorLog) {
	l.logger.Warn("oauth step failed", "kind", entry.Kind, "user", entry.UserID, "error", entry.Description)
	if err := l.store.OAuthErrors.Create(entry); err != nil {
		l.logger.Error("failed to record oauth error", "kind", entry.Kind, "error", err)
	}
}

// Link completes the authorization code flow.
//
// The code is exchanged for tokens, the email is fetched (best effort) and the token's own channel is looked up.
// An account already linked to that channel is updated and its user logged in. Otherwise the account is
// attached to current, or to a new user derived from the channel when current is nil.
func (l *AccountLinker) Link(ctx context.Context, code string, current *models.User) (*LinkResult, error) {
	currentID := ""
	if current != nil {
		currentID = current.ID()
	}

	token, err := l.auth.Exchange(ctx, code)
	if err != nil {
		l.recordErr(currentID, models.OAuthErrorExchange, err)
		return nil, err
	}

	email, err := l.auth.UserEmail(ctx, token.AccessToken)
	if err != nil {
		l.recordErr(currentID, models.OAuthErrorUserInfo, err)
		email = ""
	}

	channel, err := l.yt.MyChannel(ctx, token.AccessToken)
	if err != nil {
		l.recordErr(currentID, models.OAuthErrorChannel, err)
		return nil, err
	}

	result := &LinkResult{}
	account, err := l.store.Accounts.GetByChannel(channel.ID)
	switch {
	case err == nil:
		user, err := l.store.Users.Get(account.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load account owner: %w", err)
		}
		result.User = user
	case errors.Is(err, shared.ErrNotFound):
		result.User = current
		if result.User == nil {
			if result.User, err = l.createUser(channel, email); err != nil {
				l.recordErr("", models.OAuthErrorPersist, err)
				return nil, err
			}
			result.NewUser = true
		}

		// a user holds one account, linking another channel replaces it along with its history
		previous, err := l.store.Accounts.GetByUser(result.User.ID())
		switch {
		case err == nil:
			if err := l.store.Accounts.Delete(previous.ID()); err != nil {
				return nil, fmt.Errorf("failed to replace account: %w", err)
			}
			l.logger.Info("replacing linked channel", "user", result.User.Username, "old", previous.ChannelID, "new", channel.ID)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		account = models.NewYouTubeAccount(result.User.ID(), channel.ID, channel.Snippet.Title)
		result.NewAccount = true
	default:
		return nil, fmt.Errorf("failed to look up channel: %w", err)
	}

	applyChannel(account, channel)
	if email != "" {
		account.Email = email
	}
	account.SetToken(token.AccessToken, token.RefreshToken, token.Expiry)

	if result.NewAccount {
		err = l.store.Accounts.Create(account)
	} else {
		err = l.store.Accounts.Update(account)
	}
	if err != nil {
		l.recordErr(result.User.ID(), models.OAuthErrorPersist, err)
		return nil, err
	}
	result.Account = account

	l.logger.Info("linked youtube account",
		"user", result.User.Username, "channel", account.ChannelID, "new_user", result.NewUser)
	return result, nil
}

// createUser picks the first free username among youtube_<id>, youtube_<id>_1 .. _99,
// then falls back to a timestamped name.
func (l *AccountLinker) createUser(channel *services.Channel, email string) (*models.User, error) {
	username := ""
	for n := 0; n <= maxUsernameSuffix && username == ""; n++ {
		candidate := models.ChannelUsername(channel.ID)
		if n > 0 {
			candidate = models.ChannelUsernameCandidate(channel.ID, n)
		}
		taken, err := l.store.Users.UsernameExists(candidate)
		if err != nil {
			return nil, err
		}
		if !taken {
			username = candidate
		}
	}
	if username == "" {
		username = models.FallbackUsername(l.now())
		l.logger.Warn("every channel username is taken, using fallback", "channel", channel.ID, "username", username)
	}

	user := models.NewUser(username, email, models.FirstName(channel.Snippet.Title))
	if err := l.store.Users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func applyChannel(account *models.YouTubeAccount, channel *services.Channel) {
	if channel.Snippet.Title != "" {
		account.ChannelName = channel.Snippet.Title
	}
	if avatar := channel.Snippet.Thumbnails.Avatar(); avatar != "" {
		account.AvatarURL = avatar
	}
	account.Description = channel.Description()
	account.URL = channel.URL()

	subs, videos, views := channel.Subscribers(), channel.Videos(), channel.Views()
	account.UpdateStats(&subs, &videos, &views)
}

// EnsureFresh refreshes the access token when it has expired.
//
// Returns [shared.ErrNoRefreshToken] or [shared.ErrRefreshFailed] when the user has to link again.
func (l *AccountLinker) EnsureFresh(ctx context.Context, account *models.YouTubeAccount) error {
	if account.Authenticated(l.now()) {
		return nil
	}
	return l.Refresh(ctx, account)
}

// Refresh always exchanges the refresh token for a new access token and persists it.
func (l *AccountLinker) Refresh(ctx context.Context, account *models.YouTubeAccount) error {
	token, err := l.auth.Refresh(ctx, account.RefreshToken)
	if err != nil {
		l.recordErr(account.UserID, models.OAuthErrorRefresh, err)
		return err
	}

	account.SetToken(token.AccessToken, token.RefreshToken, token.Expiry)
	if err := l.store.Accounts.UpdateToken(account); err != nil {
		return fmt.Errorf("failed to store refreshed token: %w", err)
	}
	l.logger.Debug("refreshed access token", "channel", account.ChannelID, "expires", account.TokenExpiry)
	return nil
}

// RefreshStats pulls the channel's counters and profile, then records today's snapshot with growth.
func (l *AccountLinker) RefreshStats(ctx context.Context, account *models.YouTubeAccount) (*models.ChannelSnapshot, error) {
	if err := l.EnsureFresh(ctx, account); err != nil {
		return nil, err
	}

	channel, err := l.yt.Channel(ctx, account.AccessToken, account.ChannelID)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			l.recordErr(account.UserID, models.OAuthErrorAPIAccess, err)
		}
		return nil, err
	}

	applyChannel(account, channel)
	if err := l.store.Accounts.Update(account); err != nil {
		return nil, fmt.Errorf("failed to store channel statistics: %w", err)
	}

	snapshot := models.SnapshotOf(account, l.now())
	previous, err := l.store.Snapshots.Previous(account.ID(), snapshot.RecordedOn)
	if err != nil {
		return nil, err
	}
	snapshot.ComputeGrowth(previous)
	if err := l.store.Snapshots.Upsert(snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RecentVideos returns the channel's latest n uploads.
func (l *AccountLinker) RecentVideos(ctx context.Context, account *models.YouTubeAccount, n int) ([]services.SearchItem, error) {
	if err := l.EnsureFresh(ctx, account); err != nil {
		return nil, err
	}
	return l.yt.ChannelVideos(ctx, account.AccessToken, account.ChannelID, n)
}

// Unlink revokes the account's grant at Google and deletes the account.
// Revocation is best effort: a failure is recorded but does not stop the unlink.
func (l *AccountLinker) Unlink(ctx context.Context, account *models.YouTubeAccount) error {
	token := account.RefreshToken
	if token == "" {
		token = account.AccessToken
	}
	if err := l.auth.Revoke(ctx, token); err != nil {
		l.recordErr(account.UserID, models.OAuthErrorRevoke, err)
	}

	if err := l.store.Accounts.Delete(account.ID()); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	l.logger.Info("unlinked youtube account", "channel", account.ChannelID)
	return nil
}
