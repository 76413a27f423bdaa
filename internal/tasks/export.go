package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/ytlink/internal/formatter"
	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// ExportOpts configures [LibraryEngine.Export].
type ExportOpts struct {
	Format     string       // csv, markdown, txt or json
	OutputDir  string       // default: ytlink_export_{epoch}
	NumWorkers int          // thumbnail download workers (default: 4, max: 10)
	RateLimit  float64      // thumbnail requests per second (default: 5)
	Client     *http.Client // used for thumbnail downloads
}

// ExportResult describes the files written by an export.
type ExportResult struct {
	Videos       int
	Files        []string
	Thumbnails   int
	FailedImages []string
	ManifestPath string
}

type thumbnailJob struct {
	videoID string
	url     string
}

type thumbnailResult struct {
	videoID string
	file    string
	err     error
}

// Export writes the user's saved videos to opts.OutputDir with a manifest.
//
// Markdown exports download thumbnails with a small worker pool behind a rate limiter. A thumbnail that
// fails to download is reported in the manifest and the Markdown links the remote image instead.
func (e *LibraryEngine) Export(ctx context.Context, user *models.User, opts ExportOpts, progress chan<- ProgressUpdate) (*ExportResult, error) {
	if !slices.Contains(formatter.Formats, opts.Format) {
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidInput, opts.Format)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("ytlink_export_%d", e.now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	opts.NumWorkers = min(opts.NumWorkers, 10)
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	videos, err := e.store.Videos.List(map[string]any{"user_id": user.ID()})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	export := &formatter.LibraryExport{Username: user.Username, ExportedAt: e.now(), Videos: videos}
	result := &ExportResult{Videos: len(videos)}

	var thumbnails map[string]string
	if opts.Format == formatter.FormatMarkdown {
		thumbnails = e.downloadThumbnails(ctx, videos, opts, result, progress)
		for _, file := range thumbnails {
			result.Files = append(result.Files, filepath.Join(opts.OutputDir, file))
		}
		slices.Sort(result.Files)
	}

	path, err := formatter.Write(export, opts.Format, opts.OutputDir, thumbnails)
	if err != nil {
		return result, err
	}
	result.Files = append(result.Files, path)

	manifest := &formatter.Manifest{
		Username:     user.Username,
		Format:       opts.Format,
		ExportedAt:   export.ExportedAt,
		Videos:       result.Videos,
		Thumbnails:   result.Thumbnails,
		FailedImages: result.FailedImages,
		Files:        result.Files,
	}
	if result.ManifestPath, err = formatter.WriteManifest(manifest, opts.OutputDir); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}

	sendProgress(progress, exportDoneUpdate(result))
	e.logger.Info("exported library", "user", user.Username, "format", opts.Format, "videos", result.Videos)
	return result, nil
}

// downloadThumbnails fetches thumbnails into <OutputDir>/thumbnails and returns their paths relative to OutputDir.
func (e *LibraryEngine) downloadThumbnails(ctx context.Context, videos []*models.SavedVideo, opts ExportOpts, result *ExportResult, progress chan<- ProgressUpdate) map[string]string {
	dir := filepath.Join(opts.OutputDir, "thumbnails")
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.logger.Warn("skipping thumbnails", "error", err)
		return nil
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan thumbnailJob, len(videos))
	results := make(chan thumbnailResult, len(videos))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- e.downloadThumbnail(ctx, client, limiter, dir, job)
			}
		}()
	}

	queued := 0
	for _, v := range videos {
		if v.ThumbnailURL == "" {
			continue
		}
		jobs <- thumbnailJob{videoID: v.VideoID, url: v.ThumbnailURL}
		queued++
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	thumbnails := make(map[string]string, queued)
	done := 0
	for res := range results {
		done++
		if res.err != nil {
			result.FailedImages = append(result.FailedImages, res.videoID)
			e.logger.Warn("failed to download thumbnail", "video", res.videoID, "error", res.err)
		} else {
			thumbnails[res.videoID] = filepath.Join("thumbnails", res.file)
			result.Thumbnails++
		}
		sendProgress(progress, exportThumbnailUpdate(done, queued, res.videoID, res.err))
	}
	slices.Sort(result.FailedImages)
	return thumbnails
}

func (e *LibraryEngine) downloadThumbnail(ctx context.Context, client *http.Client, limiter *rate.Limiter, dir string, job thumbnailJob) thumbnailResult {
	res := thumbnailResult{videoID: job.videoID}
	if err := limiter.Wait(ctx); err != nil {
		res.err = err
		return res
	}

	data, err := formatter.DownloadImage(ctx, client, job.url)
	if err != nil {
		res.err = err
		return res
	}

	res.file = job.videoID + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, res.file), data, 0644); err != nil {
		res.err = fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return res
}
