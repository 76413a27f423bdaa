package tasks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	tu "github.com/desertthunder/ytlink/internal/testing"
)

func newUploads(t *testing.T, env *testEnv, uploader *tu.FakeUploader) *UploadEngine {
	t.Helper()
	cfg := shared.UploadsConfig{
		Dir:               t.TempDir(),
		MaxSizeMB:         1,
		AllowedExtensions: []string{".mp4", ".mov", ".avi"},
		PollInterval:      shared.Duration{Duration: time.Millisecond},
		PollAttempts:      3,
	}
	engine := NewUploadEngine(uploader, env.linker, env.store, cfg, log.New(io.Discard)).WithClock(func() time.Time { return testNow })
	t.Cleanup(engine.Stop)
	return engine
}

func TestUploadEngine_Validate(t *testing.T) {
	engine := newUploads(t, newTestEnv(t), &tu.FakeUploader{})

	tests := []struct {
		name string
		file string
		size int64
		want error
	}{
		{"mp4", "clip.mp4", 10, nil},
		{"uppercase extension", "CLIP.MOV", 10, nil},
		{"unsupported", "notes.txt", 10, shared.ErrUnsupportedFile},
		{"no extension", "clip", 10, shared.ErrUnsupportedFile},
		{"empty", "clip.mp4", 0, shared.ErrInvalidInput},
		{"too large", "clip.avi", 1024*1024 + 1, shared.ErrFileTooLarge},
		{"at limit", "clip.avi", 1024 * 1024, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.file, tt.size)
			if tt.want == nil && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUploadEngine_Enqueue(t *testing.T) {
	ctx := context.Background()
	body := "not really a video"
	request := func(title string) UploadRequest {
		return UploadRequest{
			Title:       title,
			Description: "desc",
			Tags:        "go, demo",
			Privacy:     models.PrivacyUnlisted,
			FileName:    "clip.mp4",
			Size:        int64(len(body)),
		}
	}

	t.Run("publishes after processing", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		uploader := &tu.FakeUploader{
			VideoID: "yt123",
			States: []services.ProcessingState{
				{UploadStatus: services.ProcessingUploaded},
				{UploadStatus: services.ProcessingProcessed},
			},
		}
		engine := newUploads(t, env, uploader)
		progress := make(chan ProgressUpdate, 64)

		job, err := engine.Enqueue(ctx, account, request("My clip"), strings.NewReader(body), progress)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.Status != models.UploadPending {
			t.Errorf("expected pending job, got %s", job.Status)
		}
		want := filepath.Join(engine.cfg.Dir, account.UserID, job.ID()+"_clip.mp4")
		if job.FilePath != want {
			t.Errorf("expected file at %s, got %s", want, job.FilePath)
		}
		if got := tu.MustReadFile(t, job.FilePath); got != body {
			t.Errorf("unexpected stored file %q", got)
		}

		engine.Wait()

		stored, err := env.store.Uploads.Get(job.ID())
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status != models.UploadPublished || stored.YouTubeVideoID != "yt123" {
			t.Errorf("unexpected job %+v", stored)
		}
		if stored.StartedAt.IsZero() || stored.FinishedAt.IsZero() {
			t.Error("expected started and finished times")
		}
		if uploader.Calls() != 2 {
			t.Errorf("expected 2 status checks, got %d", uploader.Calls())
		}

		meta := uploader.Inserted[0]
		if meta.Title != "My clip" || meta.Privacy != models.PrivacyUnlisted || meta.CategoryID != models.DefaultCategoryID {
			t.Errorf("unexpected metadata %+v", meta)
		}
		if len(meta.Tags) != 2 || meta.Tags[1] != "demo" {
			t.Errorf("unexpected tags %v", meta.Tags)
		}
		if !bytes.Equal(uploader.Bodies[0], []byte(body)) {
			t.Errorf("unexpected body %q", uploader.Bodies[0])
		}

		close(progress)
		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if phases[0] != UploadQueued || phases[len(phases)-1] != UploadDone {
			t.Errorf("unexpected phases %v", phases)
		}
	})

	t.Run("title defaults to file name", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		engine := newUploads(t, env, &tu.FakeUploader{VideoID: "yt1"})

		job, err := engine.Enqueue(ctx, account, request("  "), strings.NewReader(body), nil)
		if err != nil {
			t.Fatal(err)
		}
		if job.Title != "clip.mp4" {
			t.Errorf("expected file name as title, got %q", job.Title)
		}
		engine.Wait()
	})

	t.Run("insert error fails the job", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		engine := newUploads(t, env, &tu.FakeUploader{InsertErr: shared.ErrUploadFailed})

		job, err := engine.Enqueue(ctx, account, request("x"), strings.NewReader(body), nil)
		if err != nil {
			t.Fatal(err)
		}
		engine.Wait()

		stored, _ := env.store.Uploads.Get(job.ID())
		if stored.Status != models.UploadFailed || !strings.Contains(stored.ErrorMessage, "upload failed") {
			t.Errorf("unexpected job %+v", stored)
		}
		if stored.FinishedAt.IsZero() {
			t.Error("expected finished time on failure")
		}
	})

	t.Run("processing rejected", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		engine := newUploads(t, env, &tu.FakeUploader{
			VideoID: "yt1",
			States:  []services.ProcessingState{{UploadStatus: services.ProcessingRejected, FailureReason: "duplicate"}},
		})

		job, _ := engine.Enqueue(ctx, account, request("x"), strings.NewReader(body), nil)
		engine.Wait()

		stored, _ := env.store.Uploads.Get(job.ID())
		if stored.Status != models.UploadFailed || stored.ErrorMessage != "processing failed on YouTube: duplicate" {
			t.Errorf("unexpected job %+v", stored)
		}
	})

	t.Run("still processing after last check", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		uploader := &tu.FakeUploader{VideoID: "yt1"}
		engine := newUploads(t, env, uploader)

		job, _ := engine.Enqueue(ctx, account, request("x"), strings.NewReader(body), nil)
		engine.Wait()

		stored, _ := env.store.Uploads.Get(job.ID())
		if stored.Status != models.UploadProcessing || stored.FinishedAt.IsZero() {
			t.Errorf("unexpected job %+v", stored)
		}
		if uploader.Calls() != 3 {
			t.Errorf("expected 3 status checks, got %d", uploader.Calls())
		}
	})

	t.Run("body larger than limit", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		engine := newUploads(t, env, &tu.FakeUploader{})

		req := request("x")
		req.Size = 10
		big := bytes.NewReader(make([]byte, 1024*1024+1))
		if _, err := engine.Enqueue(ctx, account, req, big, nil); !errors.Is(err, shared.ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
		jobs, _ := env.store.Uploads.List(nil)
		if len(jobs) != 0 {
			t.Errorf("expected no job, got %d", len(jobs))
		}
	})

	t.Run("expired account without refresh token", func(t *testing.T) {
		env := newTestEnv(t)
		user := models.NewUser("ana", "", "")
		env.store.Users.Create(user)
		account := models.NewYouTubeAccount(user.ID(), "UC1", "Canal")
		account.SetToken("acc", "", testNow.Add(-time.Minute))
		env.store.Accounts.Create(account)
		engine := newUploads(t, env, &tu.FakeUploader{})

		if _, err := engine.Enqueue(ctx, account, request("x"), strings.NewReader(body), nil); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Fatalf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("unsupported file", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
		engine := newUploads(t, env, &tu.FakeUploader{})

		req := request("x")
		req.FileName = "clip.exe"
		if _, err := engine.Enqueue(ctx, account, req, strings.NewReader(body), nil); !errors.Is(err, shared.ErrUnsupportedFile) {
			t.Fatalf("expected ErrUnsupportedFile, got %v", err)
		}
	})
}

func TestUploadEngine_Stop(t *testing.T) {
	env := newTestEnv(t)
	_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))
	uploader := &tu.FakeUploader{VideoID: "yt1", Gate: make(chan struct{})}
	engine := newUploads(t, env, uploader)

	job, err := engine.Enqueue(context.Background(), account, UploadRequest{FileName: "a.mp4", Size: 3}, strings.NewReader("abc"), nil)
	if err != nil {
		t.Fatal(err)
	}
	tu.Eventually(t, time.Second, func() bool {
		stored, _ := env.store.Uploads.Get(job.ID())
		return stored != nil && stored.Status == models.UploadUploading
	})

	engine.Stop()

	stored, _ := env.store.Uploads.Get(job.ID())
	if stored.Status != models.UploadUploading || !stored.FinishedAt.IsZero() {
		t.Errorf("expected interrupted job to stay uploading, got %+v", stored)
	}
}

func TestUploadEngine_Resume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, account := env.linked(t, "ana", "UC1", testNow.Add(time.Hour))

	processing := models.NewUploadJob(account.ID(), "processing")
	processing.Status = models.UploadProcessing
	processing.YouTubeVideoID = "yt-old"
	if err := env.store.Uploads.Create(processing); err != nil {
		t.Fatal(err)
	}
	done := models.NewUploadJob(account.ID(), "done")
	done.Status = models.UploadPublished
	if err := env.store.Uploads.Create(done); err != nil {
		t.Fatal(err)
	}
	polledOut := models.NewUploadJob(account.ID(), "polled out")
	polledOut.Status = models.UploadProcessing
	polledOut.YouTubeVideoID = "yt-slow"
	polledOut.StartedAt = testNow.Add(-time.Hour)
	polledOut.FinishedAt = testNow.Add(-time.Minute)
	if err := env.store.Uploads.Create(polledOut); err != nil {
		t.Fatal(err)
	}

	uploader := &tu.FakeUploader{States: []services.ProcessingState{{UploadStatus: services.ProcessingProcessed}}}
	engine := newUploads(t, env, uploader)

	n, err := engine.Resume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 resumed job, got %d", n)
	}
	engine.Wait()

	stored, _ := env.store.Uploads.Get(processing.ID())
	if stored.Status != models.UploadPublished {
		t.Errorf("expected resumed job to be published, got %s", stored.Status)
	}
	if len(uploader.Inserted) != 0 {
		t.Error("expected no new upload for a job YouTube already has")
	}
	if stored, _ := env.store.Uploads.Get(polledOut.ID()); stored.Status != models.UploadProcessing || !stored.FinishedAt.Equal(testNow.Add(-time.Minute)) {
		t.Errorf("expected job that exhausted its polls to be left alone, got %+v", stored)
	}

	t.Run("missing file fails", func(t *testing.T) {
		pending := models.NewUploadJob(account.ID(), "pending")
		pending.FilePath = filepath.Join(t.TempDir(), "gone.mp4")
		if err := env.store.Uploads.Create(pending); err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Resume(ctx); err != nil {
			t.Fatal(err)
		}
		engine.Wait()

		stored, _ := env.store.Uploads.Get(pending.ID())
		if stored.Status != models.UploadFailed || !strings.Contains(stored.ErrorMessage, "open upload file") {
			t.Errorf("unexpected job %+v", stored)
		}
	})
}
