// package tasks implements account linking, library refresh and video uploads.
//
// Engines depend on small interfaces over the Google clients so tests can swap in fakes.
// Long operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"io"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ytlink/internal/services"
)

// Authenticator is the OAuth side of Google, implemented by [services.GoogleAuth].
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Revoke(ctx context.Context, token string) error
	UserEmail(ctx context.Context, accessToken string) (string, error)
}

// YouTubeAPI is the read side of the YouTube Data API, implemented by [services.YouTubeService].
type YouTubeAPI interface {
	MyChannel(ctx context.Context, accessToken string) (*services.Channel, error)
	Channel(ctx context.Context, accessToken, channelID string) (*services.Channel, error)
	Search(ctx context.Context, accessToken string, params services.SearchParams) (*services.SearchResult, error)
	ChannelVideos(ctx context.Context, accessToken, channelID string, n int) ([]services.SearchItem, error)
	Videos(ctx context.Context, accessToken string, ids ...string) ([]services.Video, error)
	Video(ctx context.Context, accessToken, id string) (*services.Video, error)
	VideoCategories(ctx context.Context, accessToken, region, hl string) ([]services.Category, error)
}

// VideoUploader sends media to YouTube, implemented by [services.Uploader].
type VideoUploader interface {
	Insert(ctx context.Context, accessToken string, meta services.UploadMeta, media io.Reader, progress services.ProgressFunc) (string, error)
	Status(ctx context.Context, accessToken, videoID string) (services.ProcessingState, error)
}

// Clock returns the current time. Engines default to UTC wall time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
