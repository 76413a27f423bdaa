package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	tu "github.com/desertthunder/ytlink/internal/testing"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store  *repositories.Store
	auth   *tu.FakeAuth
	yt     *tu.FakeYouTube
	linker *AccountLinker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewStore(tu.OpenTestDB(t))
	auth := &tu.FakeAuth{
		Token:     &oauth2.Token{AccessToken: "acc", RefreshToken: "ref", Expiry: testNow.Add(time.Hour)},
		Refreshed: &oauth2.Token{AccessToken: "acc2", Expiry: testNow.Add(time.Hour)},
		Email:     "ana@example.com",
	}
	yt := &tu.FakeYouTube{Own: tu.NewChannel("UCabc", "Ana Canal", 150, 12, 9000)}
	linker := NewAccountLinker(auth, yt, store, log.New(io.Discard)).WithClock(func() time.Time { return testNow })
	return &testEnv{store: store, auth: auth, yt: yt, linker: linker}
}

// linked creates a user with an account whose token expires at expiry.
func (env *testEnv) linked(t *testing.T, username, channelID string, expiry time.Time) (*models.User, *models.YouTubeAccount) {
	t.Helper()
	user := models.NewUser(username, username+"@example.com", "")
	if err := env.store.Users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	account := models.NewYouTubeAccount(user.ID(), channelID, "Canal "+channelID)
	account.SetToken("acc", "ref", expiry)
	if err := env.store.Accounts.Create(account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return user, account
}

func unresolvedKinds(t *testing.T, store *repositories.Store) []string {
	t.Helper()
	logs, err := store.OAuthErrors.Unresolved(50)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, l := range logs {
		kinds = append(kinds, l.Kind)
	}
	return kinds
}

func TestAccountLinker_Link(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user and account", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.linker.Link(ctx, "code-1", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.NewUser || !result.NewAccount {
			t.Errorf("expected new user and account, got %+v", result)
		}
		if result.User.Username != "youtube_UCabc" || result.User.FirstName != "Ana" {
			t.Errorf("unexpected user %+v", result.User)
		}

		stored, err := env.store.Accounts.GetByChannel("UCabc")
		if err != nil {
			t.Fatal(err)
		}
		if stored.UserID != result.User.ID() {
			t.Error("account not attached to the new user")
		}
		if stored.Subscribers != 150 || stored.VideoCount != 12 || stored.ViewCount != 9000 {
			t.Errorf("unexpected counters %d/%d/%d", stored.Subscribers, stored.VideoCount, stored.ViewCount)
		}
		if stored.Email != "ana@example.com" || stored.AccessToken != "acc" || stored.RefreshToken != "ref" {
			t.Errorf("unexpected token fields %+v", stored)
		}
		if stored.URL != "https://www.youtube.com/channel/UCabc" {
			t.Errorf("unexpected channel URL %s", stored.URL)
		}
	})

	t.Run("relinking keeps refresh token and user", func(t *testing.T) {
		env := newTestEnv(t)
		first, err := env.linker.Link(ctx, "code-1", nil)
		if err != nil {
			t.Fatal(err)
		}

		env.auth.Token = &oauth2.Token{AccessToken: "acc-new", Expiry: testNow.Add(2 * time.Hour)}
		env.auth.Email = ""
		second, err := env.linker.Link(ctx, "code-2", nil)
		if err != nil {
			t.Fatal(err)
		}

		if second.NewUser || second.NewAccount {
			t.Errorf("expected existing user and account, got %+v", second)
		}
		if second.User.ID() != first.User.ID() {
			t.Error("expected the same user")
		}
		stored, _ := env.store.Accounts.GetByChannel("UCabc")
		if stored.AccessToken != "acc-new" || stored.RefreshToken != "ref" {
			t.Errorf("expected new access token and old refresh token, got %s/%s", stored.AccessToken, stored.RefreshToken)
		}
		if stored.Email != "ana@example.com" {
			t.Errorf("expected email to be kept, got %q", stored.Email)
		}
	})

	t.Run("username collision gets a suffix", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.store.Users.Create(models.NewUser("youtube_UCabc", "", "")); err != nil {
			t.Fatal(err)
		}

		result, err := env.linker.Link(ctx, "code", nil)
		if err != nil {
			t.Fatal(err)
		}
		if result.User.Username != "youtube_UCabc_1" {
			t.Errorf("expected youtube_UCabc_1, got %s", result.User.Username)
		}
	})

	t.Run("every suffix taken falls back to a timestamp", func(t *testing.T) {
		env := newTestEnv(t)
		taken := []string{models.ChannelUsername("UCabc")}
		for n := 1; n <= maxUsernameSuffix; n++ {
			taken = append(taken, models.ChannelUsernameCandidate("UCabc", n))
		}
		for _, name := range taken {
			if err := env.store.Users.Create(models.NewUser(name, "", "")); err != nil {
				t.Fatal(err)
			}
		}

		result, err := env.linker.Link(ctx, "code", nil)
		if err != nil {
			t.Fatal(err)
		}
		want := models.FallbackUsername(testNow)
		if result.User.Username != want {
			t.Errorf("expected %s, got %s", want, result.User.Username)
		}
		if exists, _ := env.store.Users.UsernameExists("youtube_UCabc_100"); exists {
			t.Error("suffixes past _99 must not be used")
		}
	})

	t.Run("last suffix is still tried", func(t *testing.T) {
		env := newTestEnv(t)
		for n := 0; n < maxUsernameSuffix; n++ {
			name := models.ChannelUsername("UCabc")
			if n > 0 {
				name = models.ChannelUsernameCandidate("UCabc", n)
			}
			if err := env.store.Users.Create(models.NewUser(name, "", "")); err != nil {
				t.Fatal(err)
			}
		}

		result, err := env.linker.Link(ctx, "code", nil)
		if err != nil {
			t.Fatal(err)
		}
		if result.User.Username != "youtube_UCabc_99" {
			t.Errorf("expected youtube_UCabc_99, got %s", result.User.Username)
		}
	})

	t.Run("current user replaces previous channel", func(t *testing.T) {
		env := newTestEnv(t)
		user, old := env.linked(t, "ana", "UCold", testNow.Add(time.Hour))

		result, err := env.linker.Link(ctx, "code", user)
		if err != nil {
			t.Fatal(err)
		}
		if result.User.ID() != user.ID() || result.NewUser {
			t.Errorf("expected current user to be kept, got %+v", result.User)
		}
		if _, err := env.store.Accounts.Get(old.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected old account to be removed, got %v", err)
		}
		account, err := env.store.Accounts.GetByUser(user.ID())
		if err != nil || account.ChannelID != "UCabc" {
			t.Errorf("expected UCabc on user, got %v / %v", account, err)
		}
	})

	t.Run("no channel", func(t *testing.T) {
		env := newTestEnv(t)
		env.yt.Own = nil

		if _, err := env.linker.Link(ctx, "code", nil); !errors.Is(err, shared.ErrNoChannel) {
			t.Fatalf("expected ErrNoChannel, got %v", err)
		}
		if kinds := unresolvedKinds(t, env.store); len(kinds) != 1 || kinds[0] != models.OAuthErrorChannel {
			t.Errorf("expected channel_lookup error log, got %v", kinds)
		}
		if users, _ := env.store.Users.List(nil); len(users) != 0 {
			t.Errorf("expected no user to be created, got %d", len(users))
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.ExchangeErr = shared.ErrAuthFailed

		if _, err := env.linker.Link(ctx, "bad", nil); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if kinds := unresolvedKinds(t, env.store); len(kinds) != 1 || kinds[0] != models.OAuthErrorExchange {
			t.Errorf("expected token_exchange error log, got %v", kinds)
		}
	})

	t.Run("email failure is not fatal", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.EmailErr = errors.New("userinfo down")

		result, err := env.linker.Link(ctx, "code", nil)
		if err != nil {
			t.Fatalf("expected link to succeed, got %v", err)
		}
		if result.Account.Email != "" {
			t.Errorf("expected empty email, got %q", result.Account.Email)
		}
		if kinds := unresolvedKinds(t, env.store); len(kinds) != 1 || kinds[0] != models.OAuthErrorUserInfo {
			t.Errorf("expected userinfo error log, got %v", kinds)
		}
	})
}

func TestAccountLinker_Tokens(t *testing.T) {
	ctx := context.Background()

	t.Run("EnsureFresh skips valid tokens", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Minute))

		if err := env.linker.EnsureFresh(ctx, account); err != nil {
			t.Fatal(err)
		}
		if env.auth.RefreshCalls != 0 {
			t.Errorf("expected no refresh, got %d", env.auth.RefreshCalls)
		}
	})

	t.Run("EnsureFresh refreshes expired tokens", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(-time.Minute))

		if err := env.linker.EnsureFresh(ctx, account); err != nil {
			t.Fatal(err)
		}
		stored, _ := env.store.Accounts.Get(account.ID())
		if stored.AccessToken != "acc2" || stored.RefreshToken != "ref" {
			t.Errorf("expected refreshed token to be stored, got %s/%s", stored.AccessToken, stored.RefreshToken)
		}
		if !stored.Authenticated(testNow) {
			t.Error("expected account to be authenticated after refresh")
		}
	})

	t.Run("missing refresh token", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(-time.Minute))
		account.RefreshToken = ""

		if err := env.linker.EnsureFresh(ctx, account); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Fatalf("expected ErrNoRefreshToken, got %v", err)
		}
		if kinds := unresolvedKinds(t, env.store); len(kinds) != 1 || kinds[0] != models.OAuthErrorRefresh {
			t.Errorf("expected token_refresh error log, got %v", kinds)
		}
	})

	t.Run("google rejects refresh", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.RefreshErr = shared.ErrRefreshFailed
		_, account := env.linked(t, "ana", "UC1", testNow.Add(-time.Minute))

		if err := env.linker.Refresh(ctx, account); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
	})
}

func TestAccountLinker_RefreshStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, account := env.linked(t, "ana", "UCabc", testNow.Add(time.Hour))

	yesterday := models.SnapshotOf(account, testNow.AddDate(0, 0, -1))
	yesterday.Subscribers, yesterday.ViewCount = 100, 8000
	if err := env.store.Snapshots.Upsert(yesterday); err != nil {
		t.Fatal(err)
	}

	snapshot, err := env.linker.RefreshStats(ctx, account)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.RecordedOn != "2025-06-01" {
		t.Errorf("unexpected day %s", snapshot.RecordedOn)
	}
	if snapshot.SubscriberGrowth != 50 || snapshot.ViewGrowth != 1000 {
		t.Errorf("expected growth 50/1000, got %d/%d", snapshot.SubscriberGrowth, snapshot.ViewGrowth)
	}

	stored, _ := env.store.Accounts.Get(account.ID())
	if stored.ChannelName != "Ana Canal" || stored.Subscribers != 150 {
		t.Errorf("expected profile to be refreshed, got %s/%d", stored.ChannelName, stored.Subscribers)
	}

	t.Run("second run same day replaces snapshot", func(t *testing.T) {
		env.yt.Own = tu.NewChannel("UCabc", "Ana Canal", 160, 12, 9100)
		if _, err := env.linker.RefreshStats(ctx, account); err != nil {
			t.Fatal(err)
		}
		recent, _ := env.store.Snapshots.Recent(account.ID(), 10)
		if len(recent) != 2 || recent[0].Subscribers != 160 || recent[0].SubscriberGrowth != 60 {
			t.Errorf("unexpected snapshots %+v", recent)
		}
	})

	t.Run("expired api token is logged", func(t *testing.T) {
		env.yt.ChannelErr = &services.APIError{Status: 401, Body: `{"error":{}}`}
		defer func() { env.yt.ChannelErr = nil }()

		if _, err := env.linker.RefreshStats(ctx, account); !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		logs, _ := env.store.OAuthErrors.Unresolved(10)
		if len(logs) == 0 || logs[0].Kind != models.OAuthErrorAPIAccess || logs[0].APIResponse == "" {
			t.Errorf("expected api_access log with response body, got %+v", logs)
		}
	})
}

func TestAccountLinker_Unlink(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes and deletes", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))

		if err := env.linker.Unlink(ctx, account); err != nil {
			t.Fatal(err)
		}
		if len(env.auth.Revoked) != 1 || env.auth.Revoked[0] != "ref" {
			t.Errorf("expected refresh token to be revoked, got %v", env.auth.Revoked)
		}
		if _, err := env.store.Accounts.Get(account.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected account to be deleted, got %v", err)
		}
	})

	t.Run("revoke failure still unlinks", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.RevokeErr = errors.New("revoke failed")
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))

		if err := env.linker.Unlink(ctx, account); err != nil {
			t.Fatal(err)
		}
		if _, err := env.store.Accounts.Get(account.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected account to be deleted, got %v", err)
		}
		if kinds := unresolvedKinds(t, env.store); len(kinds) != 1 || kinds[0] != models.OAuthErrorRevoke {
			t.Errorf("expected token_revoke error log, got %v", kinds)
		}
	})
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{FetchVideos, "fetch_videos"},
		{RefreshVideo, "refresh_video"},
		{RefreshDone, "refresh_done"},
		{UploadSending, "upload_sending"},
		{UploadDone, "upload_done"},
		{ExportThumbnail, "export_thumbnail"},
		{ExportDone, "export_done"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestSendProgress(t *testing.T) {
	t.Run("nil channel", func(t *testing.T) {
		sendProgress(nil, ProgressUpdate{})
	})

	t.Run("full channel does not block", func(t *testing.T) {
		ch := make(chan ProgressUpdate, 1)
		sendProgress(ch, ProgressUpdate{Message: "first"})
		sendProgress(ch, ProgressUpdate{Message: "second"})
		if got := <-ch; got.Message != "first" {
			t.Errorf("expected first update, got %s", got.Message)
		}
	})
}
