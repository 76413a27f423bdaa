package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

// Search queries YouTube and marks results already in the library.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	params := services.SearchParams{
		Query:      query,
		MaxResults: cmd.Int("max"),
		Order:      cmd.String("order"),
		Duration:   cmd.String("duration"),
	}
	if after := cmd.String("after"); after != "" {
		t, err := time.Parse(models.DateLayout, after)
		if err != nil {
			return fmt.Errorf("%w: --after must be YYYY-MM-DD", shared.ErrInvalidArgument)
		}
		params.PublishedAfter = t
	}

	page, err := r.library.Search(ctx, user, params.Normalize())
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page.Result, true)
	}

	r.writePlain("Found %d results for %q:\n\n", len(page.Result.Items), query)
	for i, item := range page.Result.Items {
		mark := " "
		if page.Saved[item.ID.VideoID] {
			mark = "✓"
		}
		r.writePlain("%s %2d. %s\n", mark, i+1, item.Snippet.Title)
		r.writePlain("      %s • %s\n", item.Snippet.ChannelTitle, item.WatchURL())
	}
	return nil
}

// LibraryList prints one page of saved videos.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	filter := models.LibraryFilter{
		Search:       cmd.String("search"),
		CategoryID:   cmd.String("category"),
		FavoriteOnly: cmd.Bool("favorites"),
	}
	videos, page, err := r.store.Videos.Filter(user.ID(), filter, cmd.Int("page"), repositories.LibraryPageSize)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(videos, true)
	}

	if len(videos) == 0 {
		return r.writePlain("No saved videos\n")
	}
	for _, v := range videos {
		star := " "
		if v.Favorite {
			star = "★"
		}
		r.writePlain("%s %-50s %8s views  %s\n", star, truncate(v.Title, 50), shared.CompactNumber(v.Views), v.Duration)
		r.writePlain("  %s • %s\n", v.ChannelTitle, v.WatchURL())
	}
	r.writePlain("\nPage %d of %d (%d videos)\n", page.Number, page.Pages(), page.Total)
	return nil
}

// LibrarySave fetches a video's details and adds it to the library.
func (r *Runner) LibrarySave(ctx context.Context, cmd *cli.Command) error {
	videoID := strings.TrimSpace(cmd.StringArg("video-id"))
	if videoID == "" {
		return fmt.Errorf("%w: video id", shared.ErrMissingArgument)
	}
	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	saved, err := r.library.Save(ctx, user, videoID, "")
	if err != nil {
		return err
	}
	return r.writePlain("✓ Saved %s (%s views)\n", saved.Title, shared.CompactNumber(saved.Views))
}

// LibraryRefresh refreshes every saved video, printing progress as it goes.
func (r *Runner) LibraryRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	summary, err := r.library.RefreshAll(ctx, user, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Refreshed %d of %d videos", summary.Refreshed, summary.Total)
	if summary.Failed > 0 {
		r.writePlain("⚠ %d videos could not be refreshed\n", summary.Failed)
	}
	return nil
}

// LibraryExport writes the library in the requested format.
func (r *Runner) LibraryExport(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	user, err := r.currentUser(cmd)
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
		Client:     r.httpClient,
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := r.library.Export(ctx, user, opts, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Exported %d videos", result.Videos)
	for _, f := range result.Files {
		r.writePlain("  %s\n", f)
	}
	if len(result.FailedImages) > 0 {
		r.writePlain("⚠ %d thumbnails failed to download\n", len(result.FailedImages))
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
