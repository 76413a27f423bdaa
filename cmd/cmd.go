// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/formatter"
	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/services"
)

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Local username (defaults to the only linked user)",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand handles setup operations for the configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the default template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "check",
				Usage:  "Report configuration problems that would break the OAuth flow",
				Action: r.SetupCheck,
			},
			{
				Name:   "migrations",
				Usage:  "List applied database migrations",
				Action: r.SetupMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the web application.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web application",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Address to listen on (default: server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (default: server.port)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the login page in the browser",
			},
		},
		Action: r.Serve,
	}
}

// loginCommand links a channel from the terminal.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Link a YouTube channel using the browser OAuth flow",
		Flags: []cli.Flag{
			userFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the Google consent",
				Value: loginTimeout,
			},
		},
		Action: r.Login,
	}
}

// accountCommand handles the linked channel.
func accountCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "account",
		Aliases: []string{"acc"},
		Usage:   "Manage the linked YouTube account",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show authentication state and channel counters",
				Flags:  []cli.Flag{userFlag(), jsonFlag()},
				Action: r.AccountStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Renew the access token with the stored refresh token",
				Flags:  []cli.Flag{userFlag()},
				Action: r.AccountRefresh,
			},
			{
				Name:   "stats",
				Usage:  "Fetch channel statistics and record today's snapshot",
				Flags:  []cli.Flag{userFlag(), jsonFlag()},
				Action: r.AccountStats,
			},
			{
				Name:   "logout",
				Usage:  "Revoke the token and unlink the channel",
				Flags:  []cli.Flag{userFlag()},
				Action: r.AccountLogout,
			},
		},
	}
}

// searchCommand runs a YouTube search.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search YouTube videos",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			userFlag(),
			jsonFlag(),
			&cli.IntFlag{
				Name:  "max",
				Usage: "Maximum number of results (1-50)",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "order",
				Usage: "Sort order: " + strings.Join(services.SearchOrders, ", "),
				Value: "relevance",
			},
			&cli.StringFlag{
				Name:  "duration",
				Usage: "Duration filter: " + strings.Join(services.SearchDurations, ", "),
			},
			&cli.StringFlag{
				Name:  "after",
				Usage: "Only videos published after this date (YYYY-MM-DD)",
			},
		},
		Action: r.Search,
	}
}

// libraryCommand handles saved videos.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Manage saved videos",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved videos",
				Flags: []cli.Flag{
					userFlag(),
					jsonFlag(),
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by title, channel or tags"},
					&cli.StringFlag{Name: "category", Usage: "Filter by category id"},
					&cli.BoolFlag{Name: "favorites", Aliases: []string{"f"}, Usage: "Only favorites"},
					&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
				},
				Action: r.LibraryList,
			},
			{
				Name:  "save",
				Usage: "Save a video by id",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "video-id"},
				},
				Flags:  []cli.Flag{userFlag()},
				Action: r.LibrarySave,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh counters of every saved video",
				Flags:  []cli.Flag{userFlag()},
				Action: r.LibraryRefresh,
			},
			{
				Name:  "export",
				Usage: "Export saved videos to files",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: " + strings.Join(formatter.Formats, ", "),
						Value: formatter.FormatCSV,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: ytlink_export_{timestamp})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent thumbnail downloads (markdown only)",
						Value: 4,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Thumbnail requests per second (markdown only)",
						Value: 5,
					},
				},
				Action: r.LibraryExport,
			},
		},
	}
}

// uploadsCommand handles video uploads.
func uploadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "uploads",
		Usage: "Upload videos and inspect upload history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List uploads",
				Flags: []cli.Flag{
					userFlag(),
					jsonFlag(),
					&cli.StringFlag{Name: "status", Usage: "Filter by status: " + statusNames()},
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Filter by title or file name"},
					&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
				},
				Action: r.UploadsList,
			},
			{
				Name:  "send",
				Usage: "Upload a video file and wait for YouTube to process it",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "file"},
				},
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Video title (default: file name)"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Video description"},
					&cli.StringFlag{Name: "tags", Usage: "Comma separated tags"},
					&cli.StringFlag{Name: "category", Usage: "Category id", Value: models.DefaultCategoryID},
					&cli.StringFlag{Name: "privacy", Usage: "private, unlisted or public", Value: models.PrivacyPrivate},
				},
				Action: r.UploadsSend,
			},
		},
	}
}

func statusNames() string {
	names := make([]string, len(models.UploadStatuses))
	for i, s := range models.UploadStatuses {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

// tuiCommand returns the top-level TUI command for browsing the library.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse saved videos in an interactive terminal UI",
		Flags:   []cli.Flag{userFlag()},
		Action:  r.TUI,
	}
}
