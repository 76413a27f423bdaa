// YouTube Data API v3 client
//
// Resource types are flattened from https://pkg.go.dev/google.golang.org/api/youtube/v3
package services

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/youtube/v3"

	"github.com/desertthunder/ytlink/internal/shared"
)

// Search orders and durations accepted by the search endpoint.
var (
	SearchOrders    = []string{"relevance", "date", "rating", "title", "viewCount"}
	SearchDurations = []string{"any", "short", "medium", "long"}
)

const (
	DefaultSearchResults = 12
	MaxSearchResults     = 50
)

var (
	channelParts = []string{"snippet", "statistics", "brandingSettings"}
	videoParts   = []string{"snippet", "statistics", "contentDetails"}
)

type Thumbnail struct {
	URL string `json:"url"`
}

// Thumbnails holds the sizes YouTube may return for an image.
type Thumbnails struct {
	Default  *Thumbnail `json:"default,omitempty"`
	Medium   *Thumbnail `json:"medium,omitempty"`
	High     *Thumbnail `json:"high,omitempty"`
	Standard *Thumbnail `json:"standard,omitempty"`
	Maxres   *Thumbnail `json:"maxres,omitempty"`
}

// Best returns the largest available thumbnail URL.
func (t Thumbnails) Best() string { return firstURL(t.Maxres, t.Standard, t.High, t.Medium, t.Default) }

// Avatar returns the URL suited for a profile picture.
func (t Thumbnails) Avatar() string { return firstURL(t.High, t.Medium, t.Default) }

func firstURL(thumbs ...*Thumbnail) string {
	for _, t := range thumbs {
		if t != nil && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func thumbnailsFrom(d *youtube.ThumbnailDetails) Thumbnails {
	if d == nil {
		return Thumbnails{}
	}
	conv := func(t *youtube.Thumbnail) *Thumbnail {
		if t == nil {
			return nil
		}
		return &Thumbnail{URL: t.Url}
	}
	return Thumbnails{
		Default:  conv(d.Default),
		Medium:   conv(d.Medium),
		High:     conv(d.High),
		Standard: conv(d.Standard),
		Maxres:   conv(d.Maxres),
	}
}

// Channel is a channels resource with the snippet, statistics and brandingSettings parts.
type Channel struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		CustomURL   string     `json:"customUrl"`
		PublishedAt string     `json:"publishedAt"`
		Thumbnails  Thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount             int64 `json:"viewCount"`
		SubscriberCount       int64 `json:"subscriberCount"`
		HiddenSubscriberCount bool  `json:"hiddenSubscriberCount"`
		VideoCount            int64 `json:"videoCount"`
	} `json:"statistics"`
	BrandingDescription string `json:"brandingDescription,omitempty"`
}

func channelFrom(c *youtube.Channel) *Channel {
	ch := &Channel{ID: c.Id}
	if s := c.Snippet; s != nil {
		ch.Snippet.Title = s.Title
		ch.Snippet.Description = s.Description
		ch.Snippet.CustomURL = s.CustomUrl
		ch.Snippet.PublishedAt = s.PublishedAt
		ch.Snippet.Thumbnails = thumbnailsFrom(s.Thumbnails)
	}
	if s := c.Statistics; s != nil {
		ch.Statistics.ViewCount = int64(s.ViewCount)
		ch.Statistics.SubscriberCount = int64(s.SubscriberCount)
		ch.Statistics.HiddenSubscriberCount = s.HiddenSubscriberCount
		ch.Statistics.VideoCount = int64(s.VideoCount)
	}
	if b := c.BrandingSettings; b != nil && b.Channel != nil {
		ch.BrandingDescription = b.Channel.Description
	}
	return ch
}

func (c *Channel) Subscribers() int64 { return c.Statistics.SubscriberCount }
func (c *Channel) Videos() int64      { return c.Statistics.VideoCount }
func (c *Channel) Views() int64       { return c.Statistics.ViewCount }

// URL prefers the channel handle and falls back to the /channel/ URL.
func (c *Channel) URL() string {
	if h := c.Snippet.CustomURL; strings.HasPrefix(h, "@") {
		return "https://www.youtube.com/" + h
	}
	return "https://www.youtube.com/channel/" + c.ID
}

// Description prefers the snippet and falls back to branding settings.
func (c *Channel) Description() string {
	if c.Snippet.Description != "" {
		return c.Snippet.Description
	}
	return c.BrandingDescription
}

// SearchItem is a single search result.
type SearchItem struct {
	ID struct {
		Kind    string `json:"kind"`
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		PublishedAt  string     `json:"publishedAt"`
		ChannelID    string     `json:"channelId"`
		Title        string     `json:"title"`
		Description  string     `json:"description"`
		ChannelTitle string     `json:"channelTitle"`
		Thumbnails   Thumbnails `json:"thumbnails"`
	} `json:"snippet"`
}

func searchItemFrom(r *youtube.SearchResult) SearchItem {
	var item SearchItem
	if r.Id != nil {
		item.ID.Kind = r.Id.Kind
		item.ID.VideoID = r.Id.VideoId
	}
	if s := r.Snippet; s != nil {
		item.Snippet.PublishedAt = s.PublishedAt
		item.Snippet.ChannelID = s.ChannelId
		item.Snippet.Title = s.Title
		item.Snippet.Description = s.Description
		item.Snippet.ChannelTitle = s.ChannelTitle
		item.Snippet.Thumbnails = thumbnailsFrom(s.Thumbnails)
	}
	return item
}

func (s SearchItem) Thumbnail() string { return s.Snippet.Thumbnails.Best() }

func (s SearchItem) WatchURL() string { return "https://www.youtube.com/watch?v=" + s.ID.VideoID }

func (s SearchItem) Published() time.Time { return parseTime(s.Snippet.PublishedAt) }

// SearchResult is one page of search results.
type SearchResult struct {
	Items         []SearchItem `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
	PrevPageToken string       `json:"prevPageToken"`
	PageInfo      struct {
		TotalResults   int `json:"totalResults"`
		ResultsPerPage int `json:"resultsPerPage"`
	} `json:"pageInfo"`
}

func searchResultFrom(resp *youtube.SearchListResponse) *SearchResult {
	result := &SearchResult{
		Items:         make([]SearchItem, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
		PrevPageToken: resp.PrevPageToken,
	}
	for _, r := range resp.Items {
		if r != nil {
			result.Items = append(result.Items, searchItemFrom(r))
		}
	}
	if resp.PageInfo != nil {
		result.PageInfo.TotalResults = int(resp.PageInfo.TotalResults)
		result.PageInfo.ResultsPerPage = int(resp.PageInfo.ResultsPerPage)
	}
	return result
}

// SearchParams are the options of a search request.
type SearchParams struct {
	Query          string    `json:"q"`
	MaxResults     int       `json:"max_results"`
	Order          string    `json:"order"`
	Type           string    `json:"type"`
	PublishedAfter time.Time `json:"published_after,omitzero"`
	Duration       string    `json:"duration,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	PageToken      string    `json:"page_token,omitempty"`
}

// Normalize applies defaults and drops values the API would reject.
func (p SearchParams) Normalize() SearchParams {
	p.Query = strings.TrimSpace(p.Query)
	switch {
	case p.MaxResults <= 0:
		p.MaxResults = DefaultSearchResults
	case p.MaxResults > MaxSearchResults:
		p.MaxResults = MaxSearchResults
	}
	if !slices.Contains(SearchOrders, p.Order) {
		p.Order = "relevance"
	}
	if p.Type == "" {
		p.Type = "video"
	}
	if !slices.Contains(SearchDurations, p.Duration) || p.Duration == "any" {
		p.Duration = ""
	}
	return p
}

// apply sets the normalized params on a search call.
func (p SearchParams) apply(call *youtube.SearchListCall) *youtube.SearchListCall {
	call = call.MaxResults(int64(p.MaxResults)).
		Order(p.Order).
		Type(p.Type).
		SafeSearch("moderate")
	if p.Query != "" {
		call = call.Q(p.Query)
	}
	if !p.PublishedAfter.IsZero() {
		call = call.PublishedAfter(p.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if p.Duration != "" {
		call = call.VideoDuration(p.Duration)
	}
	if p.ChannelID != "" {
		call = call.ChannelId(p.ChannelID)
	}
	if p.PageToken != "" {
		call = call.PageToken(p.PageToken)
	}
	return call
}

// Video is a videos resource with the snippet, statistics and contentDetails parts.
type Video struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt  string     `json:"publishedAt"`
		ChannelID    string     `json:"channelId"`
		Title        string     `json:"title"`
		Description  string     `json:"description"`
		ChannelTitle string     `json:"channelTitle"`
		Tags         []string   `json:"tags"`
		CategoryID   string     `json:"categoryId"`
		Thumbnails   Thumbnails `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    int64 `json:"viewCount"`
		LikeCount    int64 `json:"likeCount"`
		CommentCount int64 `json:"commentCount"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration   string `json:"duration"`
		Definition string `json:"definition"`
	} `json:"contentDetails"`
}

func videoFrom(v *youtube.Video) Video {
	video := Video{ID: v.Id}
	if s := v.Snippet; s != nil {
		video.Snippet.PublishedAt = s.PublishedAt
		video.Snippet.ChannelID = s.ChannelId
		video.Snippet.Title = s.Title
		video.Snippet.Description = s.Description
		video.Snippet.ChannelTitle = s.ChannelTitle
		video.Snippet.Tags = s.Tags
		video.Snippet.CategoryID = s.CategoryId
		video.Snippet.Thumbnails = thumbnailsFrom(s.Thumbnails)
	}
	if s := v.Statistics; s != nil {
		video.Statistics.ViewCount = int64(s.ViewCount)
		video.Statistics.LikeCount = int64(s.LikeCount)
		video.Statistics.CommentCount = int64(s.CommentCount)
	}
	if d := v.ContentDetails; d != nil {
		video.ContentDetails.Duration = d.Duration
		video.ContentDetails.Definition = d.Definition
	}
	return video
}

func (v *Video) Views() int64    { return v.Statistics.ViewCount }
func (v *Video) Likes() int64    { return v.Statistics.LikeCount }
func (v *Video) Comments() int64 { return v.Statistics.CommentCount }

// Duration is the formatted clock duration, e.g. "04:13".
func (v *Video) Duration() string { return shared.FormatISODuration(v.ContentDetails.Duration) }

func (v *Video) Published() time.Time { return parseTime(v.Snippet.PublishedAt) }

// Category is an assignable video category.
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DefaultCategories is used when the categories endpoint is unavailable.
func DefaultCategories() []Category {
	return []Category{
		{ID: "22", Title: "People & Blogs"},
		{ID: "20", Title: "Gaming"},
		{ID: "10", Title: "Music"},
		{ID: "1", Title: "Film & Animation"},
	}
}

// YouTubeService reads from the YouTube Data API through the generated youtube/v3 client.
//
// Every call takes the caller's OAuth access token, so one service and one rate limiter
// are shared by all users.
type YouTubeService struct {
	client googleClient
}

// YouTubeOption configures a [YouTubeService].
type YouTubeOption func(*YouTubeService)

// WithEndpoint points the service at another API root, used by tests.
// The root must end in a slash, e.g. "https://youtube.googleapis.com/".
func WithEndpoint(u string) YouTubeOption {
	return func(y *YouTubeService) {
		if u != "" && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		y.client.endpoint = u
	}
}

// WithTransport replaces the base transport under the limiter and the OAuth header.
func WithTransport(rt http.RoundTripper) YouTubeOption {
	return func(y *YouTubeService) { y.client.transport = rt }
}

// WithTimeout bounds every request, including reading the response.
func WithTimeout(d time.Duration) YouTubeOption {
	return func(y *YouTubeService) { y.client.timeout = d }
}

// WithRateLimit allows rps requests per second with the given burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) YouTubeOption {
	return func(y *YouTubeService) {
		if rps <= 0 {
			y.client.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		y.client.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// NewYouTubeService creates a YouTube Data API client.
func NewYouTubeService(opts ...YouTubeOption) *YouTubeService {
	y := &YouTubeService{
		client: googleClient{
			limiter: rate.NewLimiter(rate.Limit(5), 5),
			timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// NewYouTubeServiceFromConfig builds a service from the [youtube] config section.
func NewYouTubeServiceFromConfig(cfg shared.YouTubeConfig) *YouTubeService {
	return NewYouTubeService(
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		WithEndpoint(cfg.APIEndpoint),
	)
}

func (y *YouTubeService) Name() string {
	return "YouTube Data API"
}

// MyChannel returns the channel owned by the token's user.
//
// Returns [shared.ErrNoChannel] when the Google account has no YouTube channel.
func (y *YouTubeService) MyChannel(ctx context.Context, accessToken string) (*Channel, error) {
	svc, err := y.client.youtube(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return firstChannel(svc.Channels.List(channelParts).Mine(true).Context(ctx).Do())
}

// Channel returns a channel by ID.
func (y *YouTubeService) Channel(ctx context.Context, accessToken, channelID string) (*Channel, error) {
	svc, err := y.client.youtube(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return firstChannel(svc.Channels.List(channelParts).Id(channelID).Context(ctx).Do())
}

func firstChannel(resp *youtube.ChannelListResponse, err error) (*Channel, error) {
	if err != nil {
		return nil, googleError(err)
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return nil, shared.ErrNoChannel
	}
	return channelFrom(resp.Items[0]), nil
}

// Search runs a video search. Params are normalized first and the query must not be empty.
func (y *YouTubeService) Search(ctx context.Context, accessToken string, params SearchParams) (*SearchResult, error) {
	params = params.Normalize()
	if params.Query == "" && params.ChannelID == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	return y.search(ctx, accessToken, params)
}

// ChannelVideos lists the latest n uploads of a channel, newest first.
func (y *YouTubeService) ChannelVideos(ctx context.Context, accessToken, channelID string, n int) ([]SearchItem, error) {
	result, err := y.search(ctx, accessToken, SearchParams{ChannelID: channelID, MaxResults: n, Order: "date"}.Normalize())
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (y *YouTubeService) search(ctx context.Context, accessToken string, params SearchParams) (*SearchResult, error) {
	svc, err := y.client.youtube(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := params.apply(svc.Search.List([]string{"snippet"})).Context(ctx).Do()
	if err != nil {
		return nil, googleError(err)
	}
	return searchResultFrom(resp), nil
}

// Videos fetches full details for up to 50 video IDs. Unknown IDs are absent from the result.
func (y *YouTubeService) Videos(ctx context.Context, accessToken string, ids ...string) ([]Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxSearchResults {
		return nil, fmt.Errorf("%w: at most %d ids per request", shared.ErrInvalidInput, MaxSearchResults)
	}

	svc, err := y.client.youtube(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List(videoParts).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, googleError(err)
	}

	videos := make([]Video, 0, len(resp.Items))
	for _, v := range resp.Items {
		if v != nil {
			videos = append(videos, videoFrom(v))
		}
	}
	return videos, nil
}

// Video fetches a single video, returning [shared.ErrVideoNotFound] when it does not exist.
func (y *YouTubeService) Video(ctx context.Context, accessToken, id string) (*Video, error) {
	videos, err := y.Videos(ctx, accessToken, id)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, id)
	}
	return &videos[0], nil
}

// VideoCategories lists the assignable categories for a region, titles in language hl.
func (y *YouTubeService) VideoCategories(ctx context.Context, accessToken, region, hl string) ([]Category, error) {
	svc, err := y.client.youtube(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	call := svc.VideoCategories.List([]string{"snippet"}).RegionCode(region)
	if hl != "" {
		call = call.Hl(hl)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, googleError(err)
	}

	categories := make([]Category, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Snippet == nil || !item.Snippet.Assignable {
			continue
		}
		categories = append(categories, Category{ID: item.Id, Title: item.Snippet.Title})
	}
	return categories, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
