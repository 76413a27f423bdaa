package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
)

// UploadRequest is the form data of a new upload.
type UploadRequest struct {
	Title       string
	Description string
	Tags        string
	CategoryID  string
	Privacy     string
	FileName    string
	Size        int64
}

// UploadEngine stores uploaded files and sends them to YouTube in the background.
//
// Each job runs in its own goroutine: uploading → processing → published, or failed on any error.
// Jobs survive restarts through [UploadEngine.Resume].
type UploadEngine struct {
	uploader VideoUploader
	linker   *AccountLinker
	store    *repositories.Store
	cfg      shared.UploadsConfig
	logger   *log.Logger
	now      Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUploadEngine(uploader VideoUploader, linker *AccountLinker, store *repositories.Store, cfg shared.UploadsConfig, logger *log.Logger) *UploadEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadEngine{
		uploader: uploader,
		linker:   linker,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      utcNow,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithClock replaces the engine's time source.
func (e *UploadEngine) WithClock(now Clock) *UploadEngine {
	e.now = now
	return e
}

// Validate checks a file's extension (case-insensitive) and size against the upload limits.
func (e *UploadEngine) Validate(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := slices.ContainsFunc(e.cfg.AllowedExtensions, func(a string) bool { return strings.EqualFold(a, ext) })
	if ext == "" || !allowed {
		return fmt.Errorf("%w: %q (allowed: %s)", shared.ErrUnsupportedFile, name, strings.Join(e.cfg.AllowedExtensions, ", "))
	}
	if size <= 0 {
		return fmt.Errorf("%w: %q is empty", shared.ErrInvalidInput, name)
	}
	if limit := e.cfg.MaxBytes(); size > limit {
		return fmt.Errorf("%w: %s exceeds %s", shared.ErrFileTooLarge, shared.HumanBytes(size), shared.HumanBytes(limit))
	}
	return nil
}

// Enqueue validates the request, stores the file under <dir>/<userID>/<jobID>_<name>,
// records a pending job and starts the upload in the background.
//
// The token is refreshed first so an account that has to link again fails here rather than in the background.
func (e *UploadEngine) Enqueue(ctx context.Context, account *models.YouTubeAccount, req UploadRequest, media io.Reader, progress chan<- ProgressUpdate) (*models.UploadJob, error) {
	if err := e.Validate(req.FileName, req.Size); err != nil {
		return nil, err
	}
	if err := e.linker.EnsureFresh(ctx, account); err != nil {
		return nil, err
	}

	name := filepath.Base(req.FileName)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = name
	}

	job := models.NewUploadJob(account.ID(), title)
	job.SetID(shared.GenerateID())
	job.Description = req.Description
	job.Tags = req.Tags
	job.FileName = name
	if req.CategoryID != "" {
		job.CategoryID = req.CategoryID
	}
	if req.Privacy != "" {
		job.Privacy = req.Privacy
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	path, size, err := e.writeFile(account.UserID, job.ID()+"_"+name, media)
	if err != nil {
		return nil, err
	}
	job.FilePath = path
	job.FileSize = size

	if err := e.store.Uploads.Create(job); err != nil {
		os.Remove(path)
		return nil, err
	}

	e.logger.Info("upload queued", "job", job.ID(), "title", job.Title, "size", shared.HumanBytes(size))
	sendProgress(progress, uploadQueuedUpdate(job))

	queued := *job
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(job, account.AccessToken, progress)
	}()
	return &queued, nil
}

// writeFile copies media to the user's upload directory, enforcing the size limit on the bytes actually written.
func (e *UploadEngine) writeFile(userID, name string, media io.Reader) (string, int64, error) {
	dir := filepath.Join(e.cfg.Dir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	limit := e.cfg.MaxBytes()
	n, err := io.Copy(f, io.LimitReader(media, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write upload file: %w", err)
	case n > limit:
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: larger than %s", shared.ErrFileTooLarge, shared.HumanBytes(limit))
	case n == 0:
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: empty file", shared.ErrInvalidInput)
	}
	return path, n, nil
}

// run sends the file then polls processing. The job always ends with finished_at set unless the engine stops.
func (e *UploadEngine) run(job *models.UploadJob, accessToken string, progress chan<- ProgressUpdate) {
	logger := shared.WithLogger(e.logger, "job", job.ID())

	job.Status = models.UploadUploading
	job.StartedAt = e.now()
	e.save(logger, job)

	id, err := e.send(job, accessToken, progress)
	if err != nil {
		e.fail(logger, job, err, progress)
		return
	}

	job.YouTubeVideoID = id
	job.Status = models.UploadProcessing
	e.save(logger, job)
	logger.Info("upload sent", "video", id)

	e.poll(logger, job, accessToken, progress)
}

func (e *UploadEngine) send(job *models.UploadJob, accessToken string, progress chan<- ProgressUpdate) (string, error) {
	f, err := os.Open(job.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload file: %w", err)
	}
	defer f.Close()

	meta := services.UploadMeta{
		Title:       job.Title,
		Description: job.Description,
		Tags:        job.TagList(),
		CategoryID:  job.CategoryID,
		Privacy:     job.Privacy,
	}
	return e.uploader.Insert(e.ctx, accessToken, meta, f, func(sent, total int64) {
		sendProgress(progress, uploadSendingUpdate(job, sent, total))
	})
}

// poll waits for YouTube to finish processing, up to PollAttempts checks PollInterval apart.
// A job still processing after the last attempt keeps that status. Status errors are retried on the next tick.
func (e *UploadEngine) poll(logger *log.Logger, job *models.UploadJob, accessToken string, progress chan<- ProgressUpdate) {
	attempts := max(e.cfg.PollAttempts, 1)
	ticker := time.NewTicker(max(e.cfg.PollInterval.Duration, time.Millisecond))
	defer ticker.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-e.ctx.Done():
			logger.Warn("stopped polling, job left in processing", "video", job.YouTubeVideoID)
			return
		case <-ticker.C:
		}

		state, err := e.uploader.Status(e.ctx, accessToken, job.YouTubeVideoID)
		if err != nil {
			logger.Warn("processing status failed", "attempt", attempt, "error", err)
			continue
		}
		sendProgress(progress, uploadProcessingUpdate(job, attempt, attempts, state.UploadStatus))

		switch {
		case state.UploadStatus == services.ProcessingProcessed:
			job.Status = models.UploadPublished
			e.finish(logger, job, progress)
			return
		case state.Failed():
			reason := "processing failed on YouTube"
			if state.FailureReason != "" {
				reason += ": " + state.FailureReason
			}
			e.fail(logger, job, errors.New(reason), progress)
			return
		}
	}

	logger.Info("video still processing after last check", "video", job.YouTubeVideoID)
	e.finish(logger, job, progress)
}

func (e *UploadEngine) fail(logger *log.Logger, job *models.UploadJob, err error, progress chan<- ProgressUpdate) {
	if errors.Is(err, context.Canceled) {
		logger.Warn("upload interrupted", "error", err)
		return
	}
	job.Status = models.UploadFailed
	job.ErrorMessage = err.Error()
	logger.Error("upload failed", "error", err)
	e.finish(logger, job, progress)
}

func (e *UploadEngine) finish(logger *log.Logger, job *models.UploadJob, progress chan<- ProgressUpdate) {
	job.FinishedAt = e.now()
	e.save(logger, job)
	sendProgress(progress, uploadDoneUpdate(job))
	logger.Info("upload finished", "status", job.Status, "elapsed", job.Elapsed())
}

func (e *UploadEngine) save(logger *log.Logger, job *models.UploadJob) {
	if err := e.store.Uploads.Update(job); err != nil {
		logger.Error("failed to update upload job", "status", job.Status, "error", err)
	}
}

// Resume restarts jobs left unfinished by a previous process.
// Jobs with a YouTube id go back to polling, the rest are uploaded again from their stored file.
func (e *UploadEngine) Resume(ctx context.Context) (int, error) {
	jobs, err := e.store.Uploads.Unfinished()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, job := range jobs {
		logger := shared.WithLogger(e.logger, "job", job.ID())

		account, err := e.store.Accounts.Get(job.AccountID)
		if err == nil {
			err = e.linker.EnsureFresh(ctx, account)
		}
		if err != nil {
			e.fail(logger, job, fmt.Errorf("cannot resume upload: %w", err), nil)
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if job.YouTubeVideoID != "" {
				e.poll(logger, job, account.AccessToken, nil)
				return
			}
			e.run(job, account.AccessToken, nil)
		}()
		resumed++
	}
	return resumed, nil
}

// Wait blocks until every background upload has returned.
func (e *UploadEngine) Wait() {
	e.wg.Wait()
}

// Stop cancels in-flight uploads and polling, then waits for them to return.
func (e *UploadEngine) Stop() {
	e.cancel()
	e.wg.Wait()
}
