// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
)

// OpenTestDB opens a migrated sqlite database in a temporary directory.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// FakeAuth is a test double for the Google OAuth client.
type FakeAuth struct {
	mu sync.Mutex

	Token       *oauth2.Token // returned by Exchange
	Refreshed   *oauth2.Token // returned by Refresh
	Email       string
	ExchangeErr error
	RefreshErr  error
	RevokeErr   error
	EmailErr    error

	Exchanged    []string
	RefreshCalls int
	Revoked      []string
}

func (f *FakeAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.test/auth?state=" + state
}

func (f *FakeAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Exchanged = append(f.Exchanged, code)
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	t := *f.Token
	return &t, nil
}

func (f *FakeAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	t := *f.Refreshed
	return &t, nil
}

func (f *FakeAuth) Revoke(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revoked = append(f.Revoked, token)
	return f.RevokeErr
}

func (f *FakeAuth) UserEmail(ctx context.Context, accessToken string) (string, error) {
	if f.EmailErr != nil {
		return "", f.EmailErr
	}
	return f.Email, nil
}

// FakeYouTube is a test double for the YouTube Data API client.
type FakeYouTube struct {
	mu sync.Mutex

	Own           *services.Channel // returned by MyChannel and Channel
	ChannelErr    error
	Result        *services.SearchResult
	SearchErr     error
	Latest        []services.SearchItem
	Catalog       map[string]services.Video
	VideosErr     error
	Categories    []services.Category
	CategoriesErr error

	Tokens []string // access tokens seen, in call order
}

func (f *FakeYouTube) seen(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
}

func (f *FakeYouTube) MyChannel(ctx context.Context, accessToken string) (*services.Channel, error) {
	f.seen(accessToken)
	if f.ChannelErr != nil {
		return nil, f.ChannelErr
	}
	if f.Own == nil {
		return nil, shared.ErrNoChannel
	}
	c := *f.Own
	return &c, nil
}

func (f *FakeYouTube) Channel(ctx context.Context, accessToken, channelID string) (*services.Channel, error) {
	return f.MyChannel(ctx, accessToken)
}

func (f *FakeYouTube) Search(ctx context.Context, accessToken string, params services.SearchParams) (*services.SearchResult, error) {
	f.seen(accessToken)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if f.Result == nil {
		return &services.SearchResult{}, nil
	}
	return f.Result, nil
}

func (f *FakeYouTube) ChannelVideos(ctx context.Context, accessToken, channelID string, n int) ([]services.SearchItem, error) {
	f.seen(accessToken)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return f.Latest[:min(n, len(f.Latest))], nil
}

func (f *FakeYouTube) Videos(ctx context.Context, accessToken string, ids ...string) ([]services.Video, error) {
	f.seen(accessToken)
	if f.VideosErr != nil {
		return nil, f.VideosErr
	}
	var videos []services.Video
	for _, id := range ids {
		if v, ok := f.Catalog[id]; ok {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func (f *FakeYouTube) Video(ctx context.Context, accessToken, id string) (*services.Video, error) {
	videos, err := f.Videos(ctx, accessToken, id)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, shared.ErrVideoNotFound
	}
	return &videos[0], nil
}

func (f *FakeYouTube) VideoCategories(ctx context.Context, accessToken, region, hl string) ([]services.Category, error) {
	f.seen(accessToken)
	if f.CategoriesErr != nil {
		return nil, f.CategoriesErr
	}
	return f.Categories, nil
}

// NewChannel builds a channel resource with the given counters.
func NewChannel(id, title string, subscribers, videos, views int64) *services.Channel {
	c := &services.Channel{ID: id}
	c.Snippet.Title = title
	c.Snippet.Description = title + " channel"
	c.Snippet.Thumbnails.High = &services.Thumbnail{URL: "https://yt3.example.test/" + id + ".jpg"}
	c.Statistics.SubscriberCount = subscribers
	c.Statistics.VideoCount = videos
	c.Statistics.ViewCount = views
	return c
}

// NewVideo builds a video resource.
func NewVideo(id, title string, views, likes int64, isoDuration string) services.Video {
	var v services.Video
	v.ID = id
	v.Snippet.Title = title
	v.Snippet.ChannelTitle = "Channel " + id
	v.Snippet.ChannelID = "UC" + id
	v.Snippet.CategoryID = "22"
	v.Snippet.Tags = []string{"go", "test"}
	v.Snippet.PublishedAt = "2024-01-15T10:00:00Z"
	v.Snippet.Thumbnails.High = &services.Thumbnail{URL: "https://i.example.test/" + id + ".jpg"}
	v.Statistics.ViewCount = views
	v.Statistics.LikeCount = likes
	v.Statistics.CommentCount = 3
	v.ContentDetails.Duration = isoDuration
	return v
}

// NewSearchItem builds a search result entry.
func NewSearchItem(videoID, title string) services.SearchItem {
	var item services.SearchItem
	item.ID.Kind = "youtube#video"
	item.ID.VideoID = videoID
	item.Snippet.Title = title
	item.Snippet.PublishedAt = "2024-02-01T00:00:00Z"
	return item
}

// FakeUploader is a test double for the media uploader.
type FakeUploader struct {
	mu sync.Mutex

	VideoID   string
	InsertErr error
	States    []services.ProcessingState // returned in order, the last one repeats
	StatusErr error
	Gate      chan struct{} // when set, Insert blocks until it is closed

	Inserted    []services.UploadMeta
	Bodies      [][]byte
	StatusCalls int
}

func (f *FakeUploader) Insert(ctx context.Context, accessToken string, meta services.UploadMeta, media io.Reader, progress services.ProgressFunc) (string, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	body, err := io.ReadAll(media)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(int64(len(body)), int64(len(body)))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inserted = append(f.Inserted, meta)
	f.Bodies = append(f.Bodies, body)
	if f.InsertErr != nil {
		return "", f.InsertErr
	}
	return f.VideoID, nil
}

func (f *FakeUploader) Status(ctx context.Context, accessToken, videoID string) (services.ProcessingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls++
	if f.StatusErr != nil {
		return services.ProcessingState{}, f.StatusErr
	}
	if len(f.States) == 0 {
		return services.ProcessingState{UploadStatus: services.ProcessingUploaded}, nil
	}
	return f.States[min(f.StatusCalls, len(f.States))-1], nil
}

// Calls returns how many status checks were made.
func (f *FakeUploader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StatusCalls
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
