package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	tu "github.com/desertthunder/ytlink/internal/testing"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	runner   *Runner
	output   *bytes.Buffer
	store    *repositories.Store
	auth     *tu.FakeAuth
	yt       *tu.FakeYouTube
	uploader *tu.FakeUploader
	config   *shared.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		output: &bytes.Buffer{},
		store:  repositories.NewStore(tu.OpenTestDB(t)),
		auth: &tu.FakeAuth{
			Token:     &oauth2.Token{AccessToken: "acc", RefreshToken: "ref", Expiry: testNow.Add(time.Hour)},
			Refreshed: &oauth2.Token{AccessToken: "acc2", Expiry: testNow.Add(2 * time.Hour)},
		},
		yt: &tu.FakeYouTube{Own: tu.NewChannel("UCana", "Ana Canal", 150, 12, 9000)},
		uploader: &tu.FakeUploader{
			VideoID: "yt123",
			States:  []services.ProcessingState{{UploadStatus: services.ProcessingProcessed}},
		},
		config: shared.DefaultConfig(),
	}
	env.config.Database.Path = filepath.Join(t.TempDir(), "cli.db")
	env.config.Uploads.Dir = t.TempDir()
	env.config.Uploads.PollInterval = shared.Duration{Duration: time.Millisecond}
	env.config.Uploads.PollAttempts = 2

	env.runner = NewRunner(RunnerOpts{
		Config:     env.config,
		ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
		Logger:     log.New(io.Discard),
		Output:     env.output,
		Store:      env.store,
		Auth:       env.auth,
		YouTube:    env.yt,
		Uploader:   env.uploader,
		Clock:      func() time.Time { return testNow },
	})
	t.Cleanup(func() { env.runner.Close() })
	return env
}

// linked creates a user with a channel whose token expires an hour after testNow.
func (env *testEnv) linked(t *testing.T, username string) (*models.User, *models.YouTubeAccount) {
	t.Helper()
	user := models.NewUser(username, username+"@example.com", "")
	if err := env.store.Users.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	account := models.NewYouTubeAccount(user.ID(), "UC"+username, "Canal "+username)
	account.SetToken("acc", "ref", testNow.Add(time.Hour))
	if err := env.store.Accounts.Create(account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return user, account
}

func (env *testEnv) run(args ...string) error {
	app := &cli.Command{Name: "ytlink", Commands: env.runner.register()}
	return app.Run(context.Background(), append([]string{"ytlink"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient == nil {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("keeps provided dependencies", func(t *testing.T) {
			env := newTestEnv(t)
			if env.runner.store != env.store || env.runner.auth != env.auth || env.runner.youtube != env.yt {
				t.Error("expected provided dependencies to be kept")
			}
		})

		t.Run("open builds engines once", func(t *testing.T) {
			env := newTestEnv(t)
			if err := env.runner.open(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			linker := env.runner.linker
			if linker == nil || env.runner.library == nil || env.runner.uploads == nil {
				t.Fatal("expected engines to be built")
			}
			if err := env.runner.open(); err != nil || env.runner.linker != linker {
				t.Error("expected second open to be a no-op")
			}
		})

		t.Run("open requires google credentials", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard)})
			runner.config.Database.Path = filepath.Join(t.TempDir(), "x.db")
			runner.config.Google.ClientID = ""
			t.Cleanup(func() { runner.Close() })

			if err := runner.open(); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", output.String())
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		names := map[string]bool{}
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "serve", "login", "account", "search", "library", "uploads", "tui"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("currentUser", func(t *testing.T) {
		t.Run("no users", func(t *testing.T) {
			env := newTestEnv(t)
			if err := env.run("account", "status"); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("several users need --user", func(t *testing.T) {
			env := newTestEnv(t)
			env.linked(t, "ana")
			env.linked(t, "bob")

			if err := env.run("account", "status"); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
			if err := env.run("account", "status", "--user", "bob"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(env.output.String(), "Canal bob") {
				t.Errorf("expected bob's channel, got:\n%s", env.output.String())
			}
		})

		t.Run("unknown user", func(t *testing.T) {
			env := newTestEnv(t)
			env.linked(t, "ana")
			if err := env.run("account", "status", "-u", "zoe"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})

		t.Run("user without a channel", func(t *testing.T) {
			env := newTestEnv(t)
			if err := env.store.Users.Create(models.NewUser("ana", "ana@example.com", "")); err != nil {
				t.Fatal(err)
			}
			if err := env.run("account", "stats"); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})
}

func TestAccountCommands(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")

		if err := env.run("account", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.output.String()
		for _, want := range []string{"Canal ana", "✓ valid", "✓ available"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("status as JSON", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")

		if err := env.run("account", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var status models.AccountStatus
		if err := json.Unmarshal(env.output.Bytes(), &status); err != nil {
			t.Fatalf("expected JSON output, got %v", err)
		}
		if !status.Authenticated || !status.TokenValid || status.ChannelID != "UCana" {
			t.Errorf("unexpected status %+v", status)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana")

		if err := env.run("account", "refresh"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stored, _ := env.store.Accounts.Get(account.ID())
		if stored.AccessToken != "acc2" {
			t.Errorf("expected refreshed token to be stored, got %q", stored.AccessToken)
		}
		if !strings.Contains(env.output.String(), "Token renewed") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}
	})

	t.Run("stats", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana")

		if err := env.run("account", "stats", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal(env.output.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON output, got %v", err)
		}
		if body["suscriptores"] != float64(150) || body["fecha"] != "2025-06-01" {
			t.Errorf("unexpected stats %v", body)
		}
		if snaps, _ := env.store.Snapshots.Recent(account.ID(), 7); len(snaps) != 1 {
			t.Errorf("expected one snapshot, got %d", len(snaps))
		}
	})

	t.Run("logout", func(t *testing.T) {
		env := newTestEnv(t)
		_, account := env.linked(t, "ana")

		if err := env.run("account", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := env.store.Accounts.Get(account.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected account to be deleted, got %v", err)
		}
		if len(env.auth.Revoked) != 1 || env.auth.Revoked[0] != "ref" {
			t.Errorf("expected refresh token to be revoked, got %v", env.auth.Revoked)
		}
	})
}

func TestLibraryCommands(t *testing.T) {
	catalog := map[string]services.Video{"vid1": tu.NewVideo("vid1", "Go Concurrency", 1500, 90, "PT4M13S")}

	t.Run("search marks saved videos", func(t *testing.T) {
		env := newTestEnv(t)
		env.yt.Catalog = catalog
		user, _ := env.linked(t, "ana")
		env.yt.Result = &services.SearchResult{Items: []services.SearchItem{
			tu.NewSearchItem("vid1", "Go Concurrency"),
			tu.NewSearchItem("vid2", "Rust Ownership"),
		}}
		if err := env.store.Videos.Create(models.NewSavedVideo(user.ID(), "vid1", "Go Concurrency")); err != nil {
			t.Fatal(err)
		}

		if err := env.run("search", "go"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "Found 2 results") || !strings.Contains(out, "✓  1. Go Concurrency") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("search requires a query", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.run("search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("search rejects a bad date", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		if err := env.run("search", "--after", "01/02/2024", "go"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("save, list and refresh", func(t *testing.T) {
		env := newTestEnv(t)
		env.yt.Catalog = catalog
		env.linked(t, "ana")

		if err := env.run("library", "save", "vid1"); err != nil {
			t.Fatalf("save: expected no error, got %v", err)
		}
		if err := env.run("library", "save", "vid1"); !errors.Is(err, shared.ErrAlreadySaved) {
			t.Errorf("save twice: expected ErrAlreadySaved, got %v", err)
		}

		env.output.Reset()
		if err := env.run("library", "list"); err != nil {
			t.Fatalf("list: expected no error, got %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "Go Concurrency") || !strings.Contains(out, "1.5K") || !strings.Contains(out, "Page 1 of 1") {
			t.Errorf("unexpected list output:\n%s", out)
		}

		env.output.Reset()
		if err := env.run("library", "refresh"); err != nil {
			t.Fatalf("refresh: expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Refreshed 1 of 1 videos") {
			t.Errorf("unexpected refresh output:\n%s", env.output.String())
		}
	})

	t.Run("list filters favorites", func(t *testing.T) {
		env := newTestEnv(t)
		user, _ := env.linked(t, "ana")
		fav := models.NewSavedVideo(user.ID(), "a", "Favorita")
		fav.Favorite = true
		for _, v := range []*models.SavedVideo{fav, models.NewSavedVideo(user.ID(), "b", "Otra")} {
			if err := env.store.Videos.Create(v); err != nil {
				t.Fatal(err)
			}
		}

		if err := env.run("library", "list", "--favorites"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.output.String()
		if !strings.Contains(out, "★ Favorita") || strings.Contains(out, "Otra") {
			t.Errorf("expected only favorites:\n%s", out)
		}
	})

	t.Run("export", func(t *testing.T) {
		env := newTestEnv(t)
		user, _ := env.linked(t, "ana")
		if err := env.store.Videos.Create(models.NewSavedVideo(user.ID(), "vid1", "Go Concurrency")); err != nil {
			t.Fatal(err)
		}
		dir := filepath.Join(t.TempDir(), "export")

		if err := env.run("library", "export", "--format", "json", "--output", dir); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "Exported 1 videos") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})

	t.Run("export rejects unknown formats", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		if err := env.run("library", "export", "--format", "pdf"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestUploadCommands(t *testing.T) {
	t.Run("send and list", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		path := filepath.Join(t.TempDir(), "clip.mp4")
		if err := os.WriteFile(path, []byte("not really a video"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := env.run("uploads", "send", "--title", "My clip", "--privacy", "unlisted", path); err != nil {
			t.Fatalf("send: expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "✓ Published https://www.youtube.com/watch?v=yt123") {
			t.Errorf("unexpected send output:\n%s", env.output.String())
		}
		if len(env.uploader.Inserted) != 1 || env.uploader.Inserted[0].Privacy != "unlisted" {
			t.Errorf("expected one unlisted insert, got %+v", env.uploader.Inserted)
		}

		env.output.Reset()
		if err := env.run("uploads", "list"); err != nil {
			t.Fatalf("list: expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "My clip") || !strings.Contains(env.output.String(), "1 published") {
			t.Errorf("unexpected list output:\n%s", env.output.String())
		}
	})

	t.Run("send reports a failed upload", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		env.uploader.InsertErr = errors.New("quota exceeded")
		path := filepath.Join(t.TempDir(), "clip.mp4")
		if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := env.run("uploads", "send", path); !errors.Is(err, shared.ErrUploadFailed) {
			t.Errorf("expected ErrUploadFailed, got %v", err)
		}
	})

	t.Run("send rejects unsupported files", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		path := filepath.Join(t.TempDir(), "notes.txt")
		if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := env.run("uploads", "send", path); !errors.Is(err, shared.ErrUnsupportedFile) {
			t.Errorf("expected ErrUnsupportedFile, got %v", err)
		}
	})

	t.Run("list validates status", func(t *testing.T) {
		env := newTestEnv(t)
		env.linked(t, "ana")
		if err := env.run("uploads", "list", "--status", "lost"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config and check", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, env.runner.configPath)
		if err := env.run("setup", "config"); err == nil {
			t.Error("expected an error when the config already exists")
		}

		env.output.Reset()
		if err := env.run("setup", "check"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig for template credentials, got %v", err)
		}
		if !strings.Contains(env.output.String(), "google.client_id") {
			t.Errorf("expected issues to be listed:\n%s", env.output.String())
		}

		env.config.Google.ClientID = "id"
		env.config.Google.ClientSecret = "secret"
		env.output.Reset()
		if err := env.run("setup", "check"); err != nil {
			t.Errorf("expected a clean check, got %v", err)
		}
	})

	t.Run("database, migrations and rollback", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run("setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, env.config.Database.Path)
		if !strings.Contains(env.output.String(), "Database ready") {
			t.Errorf("unexpected output:\n%s", env.output.String())
		}

		env.output.Reset()
		if err := env.run("setup", "migrations"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.output.String(), "0001") {
			t.Errorf("expected applied migrations:\n%s", env.output.String())
		}

		if err := env.run("setup", "rollback"); err != nil {
			t.Errorf("expected rollback to succeed, got %v", err)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"http://localhost:8000/oauth/callback/", "localhost:8000", false},
		{"http://example.test/oauth/callback/", "example.test:80", false},
		{"https://example.test/oauth/callback/", "example.test:443", false},
		{"/oauth/callback/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := callbackAddr(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func TestBrowserHost(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"0.0.0.0:8000", "localhost:8000"},
		{"[::]:8000", "localhost:8000"},
		{"127.0.0.1:9000", "127.0.0.1:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			addr, err := net.ResolveTCPAddr("tcp", tt.addr)
			if err != nil {
				t.Fatal(err)
			}
			if got := browserHost(addr); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected untouched string, got %q", got)
	}
	if got := truncate("canción larguísima", 8); got != "canción…" {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
}
