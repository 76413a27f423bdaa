package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

const loginTimeout = 2 * time.Minute

// callbackAddr is the host:port of the configured redirect URI, where the login server listens.
func callbackAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: google.redirect_uri %q is not an absolute URL", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443"), nil
	}
	return net.JoinHostPort(u.Hostname(), "80"), nil
}

// Login runs the OAuth flow against a temporary callback server and links the consenting channel.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	var current *models.User
	if cmd.String("user") != "" {
		user, err := r.currentUser(cmd)
		if err != nil {
			return err
		}
		current = user
	}

	addr, err := callbackAddr(r.config.Google.RedirectURI)
	if err != nil {
		return err
	}
	state, err := shared.RandomToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	var linked *tasks.LinkResult
	handler := server.NewOAuthHandler(func(ctx context.Context, code string) (string, error) {
		result, err := r.linker.Link(ctx, code, current)
		if err != nil {
			return "", err
		}
		linked = result
		return result.Account.ChannelName, nil
	}, state)

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.Logging(r.logger))
	router.Handler(handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s (is 'ytlink serve' running?): %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.NewServer(addr, router, r.logger).Serve(srvCtx, ln)
	}()

	authURL := r.linker.AuthCodeURL(state)
	r.writePlain("→ Opening browser for Google authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = loginTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	cancel()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	r.writePlainln("✓ Linked %s", linked.Account.ChannelName)
	r.writePlain("User: %s", linked.User.Username)
	if linked.NewUser {
		r.writePlain(" (new)")
	}
	r.writePlain("\nChannel: %s\n", linked.Account.ChannelURL())
	return nil
}

// AccountStatus prints the authentication state of the linked channel.
func (r *Runner) AccountStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	_, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}

	status := account.Status(r.clock()())
	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader(status.ChannelName)
	r.writePlain("Channel:      %s\n", status.ChannelURL)
	if status.Email != "" {
		r.writePlain("Email:        %s\n", status.Email)
	}
	if status.TokenValid {
		r.writePlain("Token:        ✓ valid, %s left\n", status.TimeRemaining)
	} else {
		r.writePlain("Token:        ✗ expired\n")
	}
	if status.HasRefreshToken {
		r.writePlain("Refresh:      ✓ available\n")
	} else {
		r.writePlain("Refresh:      ✗ missing, run 'ytlink login' again\n")
	}
	r.writePlain("Subscribers:  %s\n", shared.CompactNumber(status.Subscribers))
	r.writePlain("Videos:       %d\n", status.VideoCount)
	r.writePlain("Views:        %s\n", shared.CompactNumber(status.ViewCount))

	snapshots, err := r.store.Snapshots.Recent(account.ID(), 7)
	if err != nil {
		r.logger.Warn("failed to load snapshots", "error", err)
	}
	if len(snapshots) > 0 {
		r.writePlainln("Last %d days:", len(snapshots))
		for _, s := range snapshots {
			r.writePlain("  %s  %8s subs (%+d)  %8s views (%+d)\n",
				s.RecordedOn, shared.CompactNumber(s.Subscribers), s.SubscriberGrowth,
				shared.CompactNumber(s.ViewCount), s.ViewGrowth)
		}
	}
	return nil
}

// AccountRefresh exchanges the stored refresh token for a new access token.
func (r *Runner) AccountRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	_, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}
	if account.RefreshToken == "" {
		return fmt.Errorf("%w: run 'ytlink login' again", shared.ErrNoRefreshToken)
	}

	if err := r.linker.Refresh(ctx, account); err != nil {
		return err
	}
	return r.writePlain("✓ Token renewed, expires %s\n", account.TokenExpiry.Local().Format(time.DateTime))
}

// AccountStats fetches channel counters and records today's snapshot.
func (r *Runner) AccountStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	_, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}

	snapshot, err := r.linker.RefreshStats(ctx, account)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"nombre_canal":             account.ChannelName,
			"suscriptores":             account.Subscribers,
			"videos":                   account.VideoCount,
			"vistas":                   account.ViewCount,
			"crecimiento_suscriptores": snapshot.SubscriberGrowth,
			"crecimiento_vistas":       snapshot.ViewGrowth,
			"fecha":                    snapshot.RecordedOn,
		}, true)
	}

	r.writePlainHeader(account.ChannelName)
	r.writePlain("Subscribers:  %s (%+d)\n", shared.CompactNumber(account.Subscribers), snapshot.SubscriberGrowth)
	r.writePlain("Videos:       %d\n", account.VideoCount)
	r.writePlain("Views:        %s (%+d)\n", shared.CompactNumber(account.ViewCount), snapshot.ViewGrowth)
	return nil
}

// AccountLogout revokes the grant, unlinks the channel and ends the user's web sessions.
func (r *Runner) AccountLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	user, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}

	if err := r.linker.Unlink(ctx, account); err != nil {
		return err
	}
	if err := r.store.Sessions.DeleteForUser(user.ID()); err != nil {
		r.logger.Warn("failed to delete sessions", "user", user.Username, "error", err)
	}
	return r.writePlain("✓ Unlinked %s from %s\n", account.ChannelName, user.Username)
}
