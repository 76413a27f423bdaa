package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

// UploadsList prints one page of the account's uploads.
func (r *Runner) UploadsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	_, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}

	filter := models.UploadFilter{Search: cmd.String("search")}
	if raw := cmd.String("status"); raw != "" {
		status := models.UploadStatus(raw)
		if !status.Valid() {
			return fmt.Errorf("%w: status must be one of %s", shared.ErrInvalidArgument, statusNames())
		}
		filter.Status = status
	}

	jobs, page, err := r.store.Uploads.Filter(account.ID(), filter, cmd.Int("page"), repositories.UploadPageSize)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(jobs, true)
	}

	if len(jobs) == 0 {
		return r.writePlain("No uploads\n")
	}
	for _, job := range jobs {
		r.writePlain("%-12s %-40s %9s  %s\n", job.Status.Label(), truncate(job.Title, 40), shared.HumanBytes(job.FileSize), job.CreatedAt().Local().Format("2006-01-02 15:04"))
		switch {
		case job.Status == models.UploadFailed && job.ErrorMessage != "":
			r.writePlain("  ✗ %s\n", job.ErrorMessage)
		case job.YouTubeVideoID != "":
			r.writePlain("  %s\n", job.WatchURL())
		}
	}

	totals, err := r.store.Uploads.Totals(account.ID(), filter)
	if err != nil {
		return err
	}
	r.writePlain("\nPage %d of %d • %d published, %d in progress, %d failed (%s)\n",
		page.Number, page.Pages(), totals.Published, totals.InProgress, totals.Failed, shared.HumanBytes(totals.TotalBytes))
	return nil
}

// UploadsSend uploads a local file and waits until YouTube has processed it.
// Interrupting cancels the upload and leaves the job to be resumed by 'ytlink serve'.
func (r *Runner) UploadsSend(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: video file", shared.ErrMissingArgument)
	}
	if err := r.open(); err != nil {
		return err
	}
	_, account, err := r.currentAccount(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat video: %w", err)
	}

	req := tasks.UploadRequest{
		Title:       cmd.String("title"),
		Description: cmd.String("description"),
		Tags:        cmd.String("tags"),
		CategoryID:  cmd.String("category"),
		Privacy:     cmd.String("privacy"),
		FileName:    filepath.Base(path),
		Size:        info.Size(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	job, err := r.uploads.Enqueue(ctx, account, req, f, progress)
	if err != nil {
		close(progress)
		<-done
		return err
	}

	finished := make(chan struct{})
	go func() {
		r.uploads.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		r.writePlain("→ Interrupted, cancelling upload...\n")
		r.uploads.Stop()
		<-finished
	}
	close(progress)
	<-done

	job, err = r.store.Uploads.Get(job.ID())
	if err != nil {
		return err
	}
	switch job.Status {
	case models.UploadFailed:
		return fmt.Errorf("%w: %s", shared.ErrUploadFailed, job.ErrorMessage)
	case models.UploadPublished:
		return r.writePlain("✓ Published %s\n", job.WatchURL())
	default:
		return r.writePlain("→ %s is %s, check again with 'ytlink uploads list'\n", job.Title, job.Status.Label())
	}
}
