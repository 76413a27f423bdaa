package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/shared"
)

const (
	WatchURLPrefix = "https://www.youtube.com/watch?v="
	EmbedURLPrefix = "https://www.youtube.com/embed/"
	qrCodeEndpoint = "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data="
)

// DefaultThumbnail is the thumbnail used when video details cannot be fetched.
func DefaultThumbnail(videoID string) string {
	return "https://img.youtube.com/vi/" + videoID + "/hqdefault.jpg"
}

// SavedVideo is a video a user bookmarked from search results.
type SavedVideo struct {
	Base
	UserID       string
	VideoID      string
	Title        string
	Description  string
	ChannelTitle string
	ChannelID    string
	ThumbnailURL string
	PublishedAt  time.Time
	Views        int64
	Likes        int64
	Comments     int64
	Duration     string
	CategoryID   string
	Tags         string
	Favorite     bool
	Notes        string
	Watched      bool
}

func NewSavedVideo(userID, videoID, title string) *SavedVideo {
	return &SavedVideo{Base: newBase(), UserID: userID, VideoID: videoID, Title: title}
}

func (v *SavedVideo) Validate() error {
	switch {
	case v.UserID == "":
		return invalid("saved video requires a user")
	case strings.TrimSpace(v.VideoID) == "":
		return invalid("video id is required")
	case strings.TrimSpace(v.Title) == "":
		return invalid("title is required")
	}
	return nil
}

func (v *SavedVideo) WatchURL() string { return WatchURLPrefix + v.VideoID }
func (v *SavedVideo) EmbedURL() string { return EmbedURLPrefix + v.VideoID }

// QRCodeURL links to a QR code image encoding the watch URL.
func (v *SavedVideo) QRCodeURL() string {
	return qrCodeEndpoint + url.QueryEscape(v.WatchURL())
}

func (v *SavedVideo) TagList() []string { return shared.SplitTags(v.Tags) }

// VideoStat is one day of counters for a saved video.
type VideoStat struct {
	Base
	SavedVideoID string
	RecordedOn   string
	Views        int64
	Likes        int64
	Comments     int64
	ViewGrowth   int64
}

// StatOf copies the counters of v for day.
func StatOf(v *SavedVideo, day time.Time) *VideoStat {
	return &VideoStat{
		Base:         newBase(),
		SavedVideoID: v.ID(),
		RecordedOn:   day.Format(DateLayout),
		Views:        v.Views,
		Likes:        v.Likes,
		Comments:     v.Comments,
	}
}

func (s *VideoStat) Validate() error {
	if s.SavedVideoID == "" {
		return invalid("stat requires a saved video")
	}
	return nil
}

// SearchRecord is an entry of a user's search history.
type SearchRecord struct {
	Base
	UserID      string
	Query       string
	ResultCount int
	Params      string
}

func NewSearchRecord(userID, query string, resultCount int, params string) *SearchRecord {
	if params == "" {
		params = "{}"
	}
	return &SearchRecord{Base: newBase(), UserID: userID, Query: query, ResultCount: resultCount, Params: params}
}

func (s *SearchRecord) Validate() error {
	if s.UserID == "" {
		return invalid("search record requires a user")
	}
	if strings.TrimSpace(s.Query) == "" {
		return invalid("query is required")
	}
	return nil
}

// LibraryFilter narrows a saved video listing.
type LibraryFilter struct {
	Search       string
	CategoryID   string
	FavoriteOnly bool
}

// LibraryTotals aggregates a user's whole library.
type LibraryTotals struct {
	Videos   int
	Views    int64
	Likes    int64
	Comments int64
}
