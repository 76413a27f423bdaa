package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and Google clients are opened on first use so setup commands work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client

	db       *sql.DB
	store    *repositories.Store
	auth     tasks.Authenticator
	youtube  tasks.YouTubeAPI
	uploader tasks.VideoUploader
	linker   *tasks.AccountLinker
	library  *tasks.LibraryEngine
	uploads  *tasks.UploadEngine
	now      tasks.Clock
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store and the Google clients are optional, missing ones are built from Config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Store      *repositories.Store
	Auth       tasks.Authenticator
	YouTube    tasks.YouTubeAPI
	Uploader   tasks.VideoUploader
	Clock      tasks.Clock
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		auth:       opts.Auth,
		youtube:    opts.YouTube,
		uploader:   opts.Uploader,
		now:        opts.Clock,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, loginCommand, accountCommand, searchCommand, libraryCommand, uploadsCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// open connects the store and builds the engines. Repeated calls are no-ops.
func (r *Runner) open() error {
	if r.linker != nil {
		return nil
	}

	if r.store == nil {
		r.logger.Debug("opening database", "path", r.config.Database.Path)
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.store = repositories.NewStore(db)
	}
	if r.auth == nil {
		auth, err := services.NewGoogleAuth(r.config.Google)
		if err != nil {
			return err
		}
		r.auth = auth
	}
	if r.youtube == nil {
		r.youtube = services.NewYouTubeServiceFromConfig(r.config.YouTube)
	}
	if r.uploader == nil {
		r.uploader = services.NewUploader()
	}

	r.linker = tasks.NewAccountLinker(r.auth, r.youtube, r.store, r.logger)
	r.library = tasks.NewLibraryEngine(r.youtube, r.linker, r.store, r.logger)
	r.uploads = tasks.NewUploadEngine(r.uploader, r.linker, r.store, r.config.Uploads, r.logger)
	if r.now != nil {
		r.linker.WithClock(r.now)
		r.library.WithClock(r.now)
		r.uploads.WithClock(r.now)
	}
	return nil
}

// Close releases the database opened by the runner.
func (r *Runner) Close() error {
	if r.uploads != nil {
		r.uploads.Stop()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) clock() tasks.Clock {
	if r.now != nil {
		return r.now
	}
	return func() time.Time { return time.Now().UTC() }
}

// currentUser resolves the --user flag. Without it, the only local user is used.
func (r *Runner) currentUser(cmd *cli.Command) (*models.User, error) {
	if username := cmd.String("user"); username != "" {
		user, err := r.store.Users.GetByUsername(username)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", username, err)
		}
		return user, nil
	}

	users, err := r.store.Users.List(nil)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, fmt.Errorf("%w: no linked users yet, run 'ytlink login' first", shared.ErrNotAuthenticated)
	case 1:
		return users[0], nil
	default:
		return nil, fmt.Errorf("%w: %d users exist, pass --user", shared.ErrMissingArgument, len(users))
	}
}

// currentAccount resolves the user and their linked channel.
func (r *Runner) currentAccount(cmd *cli.Command) (*models.User, *models.YouTubeAccount, error) {
	user, err := r.currentUser(cmd)
	if err != nil {
		return nil, nil, err
	}
	account, err := r.store.Accounts.GetByUser(user.ID())
	if err != nil {
		return user, nil, fmt.Errorf("%w: %s has no linked channel", shared.ErrNotAuthenticated, user.Username)
	}
	return user, account, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// printProgress writes updates until the channel is closed.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	for update := range progress {
		r.writePlain("→ %s\n", update.Message)
	}
	close(done)
}
