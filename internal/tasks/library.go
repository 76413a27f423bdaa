package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/repositories"
	"github.com/desertthunder/ytlink/internal/services"
	"github.com/desertthunder/ytlink/internal/shared"
)

const (
	// RecentSearches is how many past searches are shown with the search form.
	RecentSearches = 10
	// refreshConcurrency bounds parallel videos.list batches during RefreshAll.
	refreshConcurrency = 3
)

// RefreshSummary counts the outcome of [LibraryEngine.RefreshAll].
type RefreshSummary struct {
	Total     int
	Refreshed int
	Failed    int
}

// SearchPage is a search result with the user's recent history.
type SearchPage struct {
	Params  services.SearchParams
	Result  *services.SearchResult
	History []*models.SearchRecord
	Saved   map[string]bool
}

// LibraryEngine manages a user's saved videos and searches.
type LibraryEngine struct {
	yt     YouTubeAPI
	linker *AccountLinker
	store  *repositories.Store
	logger *log.Logger
	now    Clock
}

func NewLibraryEngine(yt YouTubeAPI, linker *AccountLinker, store *repositories.Store, logger *log.Logger) *LibraryEngine {
	return &LibraryEngine{yt: yt, linker: linker, store: store, logger: logger, now: utcNow}
}

// WithClock replaces the engine's time source.
func (e *LibraryEngine) WithClock(now Clock) *LibraryEngine {
	e.now = now
	return e
}

// freshAccount loads the user's account with a valid access token.
func (e *LibraryEngine) freshAccount(ctx context.Context, user *models.User) (*models.YouTubeAccount, error) {
	account, err := e.store.Accounts.GetByUser(user.ID())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: no linked youtube account", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, err
	}
	if err := e.linker.EnsureFresh(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Search runs a search for user, records it in the history and marks results already saved.
func (e *LibraryEngine) Search(ctx context.Context, user *models.User, params services.SearchParams) (*SearchPage, error) {
	account, err := e.freshAccount(ctx, user)
	if err != nil {
		return nil, err
	}

	params = params.Normalize()
	result, err := e.yt.Search(ctx, account.AccessToken, params)
	if err != nil {
		return nil, err
	}

	page := &SearchPage{Params: params, Result: result, Saved: make(map[string]bool)}
	for _, item := range result.Items {
		saved, err := e.store.Videos.Exists(user.ID(), item.ID.VideoID)
		if err != nil {
			return nil, err
		}
		page.Saved[item.ID.VideoID] = saved
	}

	raw, err := json.Marshal(params)
	if err != nil {
		e.logger.Warn("failed to encode search params", "user", user.Username, "error", err)
		raw = []byte("{}")
	}
	record := models.NewSearchRecord(user.ID(), params.Query, len(result.Items), string(raw))
	if err := e.store.Searches.Create(record); err != nil {
		e.logger.Warn("failed to record search", "user", user.Username, "error", err)
	}

	if page.History, err = e.store.Searches.Recent(user.ID(), RecentSearches); err != nil {
		return nil, err
	}
	return page, nil
}

// Save bookmarks a video for user.
//
// Details come from the API when the user has a usable account. Otherwise a minimal record is stored
// with fallbackTitle and the default thumbnail.
func (e *LibraryEngine) Save(ctx context.Context, user *models.User, videoID, fallbackTitle string) (*models.SavedVideo, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id is required", shared.ErrMissingArgument)
	}

	exists, err := e.store.Videos.Exists(user.ID(), videoID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("video %s %w", videoID, shared.ErrAlreadySaved)
	}

	title := strings.TrimSpace(fallbackTitle)
	if title == "" {
		title = videoID
	}
	saved := models.NewSavedVideo(user.ID(), videoID, title)
	saved.ThumbnailURL = models.DefaultThumbnail(videoID)

	if account, err := e.freshAccount(ctx, user); err == nil {
		if video, err := e.yt.Video(ctx, account.AccessToken, videoID); err == nil {
			applyVideo(saved, video)
		} else {
			e.logger.Warn("saving video without details", "video", videoID, "error", err)
		}
	}

	if err := e.store.Videos.Create(saved); err != nil {
		return nil, err
	}
	e.record(saved)
	return saved, nil
}

// Refresh updates a saved video's metadata and counters and records today's stat.
func (e *LibraryEngine) Refresh(ctx context.Context, user *models.User, saved *models.SavedVideo) error {
	account, err := e.freshAccount(ctx, user)
	if err != nil {
		return err
	}

	video, err := e.yt.Video(ctx, account.AccessToken, saved.VideoID)
	if err != nil {
		return err
	}
	return e.apply(saved, video)
}

// RefreshAll refreshes every saved video of user.
//
// Details are fetched in batches of 50 ids with bounded concurrency, then applied in order so
// progress steps are monotonic. Videos missing from the API count as failed.
func (e *LibraryEngine) RefreshAll(ctx context.Context, user *models.User, progress chan<- ProgressUpdate) (*RefreshSummary, error) {
	account, err := e.freshAccount(ctx, user)
	if err != nil {
		return nil, err
	}

	saved, err := e.store.Videos.List(map[string]any{"user_id": user.ID()})
	if err != nil {
		return nil, err
	}

	summary := &RefreshSummary{Total: len(saved)}
	if len(saved) == 0 {
		sendProgress(progress, refreshDoneUpdate(summary))
		return summary, nil
	}

	batches := batchIDs(saved, services.MaxSearchResults)
	details := make(map[string]*services.Video, len(saved))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, ids := range batches {
		g.Go(func() error {
			sendProgress(progress, fetchVideosUpdate(i+1, len(batches)))
			videos, err := e.yt.Videos(gctx, account.AccessToken, ids...)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for j := range videos {
				details[videos[j].ID] = &videos[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, v := range saved {
		video, ok := details[v.VideoID]
		if !ok {
			summary.Failed++
			sendProgress(progress, refreshVideoUpdate(i+1, len(saved), v, shared.ErrVideoNotFound))
			continue
		}
		if err := e.apply(v, video); err != nil {
			summary.Failed++
			sendProgress(progress, refreshVideoUpdate(i+1, len(saved), v, err))
			continue
		}
		summary.Refreshed++
		sendProgress(progress, refreshVideoUpdate(i+1, len(saved), v, nil))
	}

	sendProgress(progress, refreshDoneUpdate(summary))
	e.logger.Info("refreshed library", "user", user.Username, "refreshed", summary.Refreshed, "failed", summary.Failed)
	return summary, nil
}

func batchIDs(videos []*models.SavedVideo, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(videos); start += size {
		end := min(start+size, len(videos))
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.VideoID)
		}
		batches = append(batches, ids)
	}
	return batches
}

func (e *LibraryEngine) apply(saved *models.SavedVideo, video *services.Video) error {
	applyVideo(saved, video)
	if err := e.store.Videos.Update(saved); err != nil {
		return err
	}
	e.record(saved)
	return nil
}

// record upserts today's stat. Failures are logged, stats are supplementary.
func (e *LibraryEngine) record(saved *models.SavedVideo) {
	stat := models.StatOf(saved, e.now())
	previous, err := e.store.Stats.Previous(saved.ID(), stat.RecordedOn)
	if err != nil {
		e.logger.Warn("failed to load previous stat", "video", saved.VideoID, "error", err)
	}
	if previous != nil {
		stat.ViewGrowth = stat.Views - previous.Views
	}
	if err := e.store.Stats.Upsert(stat); err != nil {
		e.logger.Warn("failed to record video stat", "video", saved.VideoID, "error", err)
	}
}

func applyVideo(saved *models.SavedVideo, video *services.Video) {
	if video.Snippet.Title != "" {
		saved.Title = video.Snippet.Title
	}
	saved.Description = video.Snippet.Description
	saved.ChannelTitle = video.Snippet.ChannelTitle
	saved.ChannelID = video.Snippet.ChannelID
	if thumb := video.Snippet.Thumbnails.Best(); thumb != "" {
		saved.ThumbnailURL = thumb
	} else if saved.ThumbnailURL == "" {
		saved.ThumbnailURL = models.DefaultThumbnail(saved.VideoID)
	}
	saved.PublishedAt = video.Published()
	saved.Views = video.Views()
	saved.Likes = video.Likes()
	saved.Comments = video.Comments()
	saved.Duration = video.Duration()
	saved.CategoryID = video.Snippet.CategoryID
	saved.Tags = shared.JoinTags(video.Snippet.Tags)
	saved.Touch()
}
