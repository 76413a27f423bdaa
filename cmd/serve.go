package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/server"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/web"
)

// app builds the web application over the runner's engines.
func (r *Runner) app() (*web.App, error) {
	app, err := web.New(web.Deps{
		Config:   r.config,
		Store:    r.store,
		Linker:   r.linker,
		Library:  r.library,
		Uploads:  r.uploads,
		YouTube:  r.youtube,
		Sessions: server.NewSessionManager(r.store, r.config.Server),
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}
	if r.now != nil {
		app.WithClock(r.now)
	}
	return app, nil
}

// Serve runs the web application until interrupted.
//
// Unfinished uploads from a previous run are resumed first. On shutdown the server drains
// in-flight requests, then background uploads are cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	for _, issue := range r.config.Check() {
		r.logger.Warn("configuration issue", "field", issue.Field, "message", issue.Message)
	}
	if err := r.open(); err != nil {
		return err
	}

	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = port
	}

	if purged, err := r.store.Sessions.PurgeExpired(r.clock()()); err != nil {
		r.logger.Warn("failed to purge expired sessions", "error", err)
	} else if purged > 0 {
		r.logger.Info("purged expired sessions", "count", purged)
	}

	resumed, err := r.uploads.Resume(ctx)
	if err != nil {
		r.logger.Warn("failed to resume uploads", "error", err)
	} else if resumed > 0 {
		r.logger.Info("resumed unfinished uploads", "count", resumed)
	}

	app, err := r.app()
	if err != nil {
		return fmt.Errorf("failed to build web app: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := "http://" + browserHost(ln.Addr()) + web.HomePath
	r.writePlain("→ Serving ytlink at %s\n", url)
	if cmd.Bool("open") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	srv := server.NewServer(cfg.Addr(), app.Router(), r.logger)
	err = srv.Serve(ctx, ln)
	r.uploads.Stop()
	return err
}

// browserHost turns a wildcard listen address into one a browser can open.
func browserHost(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return addr.String()
	}
	return net.JoinHostPort(host, port)
}
