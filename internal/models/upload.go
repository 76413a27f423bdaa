package models

import (
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/shared"
)

// UploadStatus is the lifecycle state of an [UploadJob].
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadUploading  UploadStatus = "uploading"
	UploadProcessing UploadStatus = "processing"
	UploadPublished  UploadStatus = "published"
	UploadFailed     UploadStatus = "failed"
)

// UploadStatuses lists every status in lifecycle order.
var UploadStatuses = []UploadStatus{UploadPending, UploadUploading, UploadProcessing, UploadPublished, UploadFailed}

func (s UploadStatus) String() string { return string(s) }

// Label is the display name for s.
func (s UploadStatus) Label() string {
	switch s {
	case UploadPending:
		return "Pending"
	case UploadUploading:
		return "Uploading"
	case UploadProcessing:
		return "Processing"
	case UploadPublished:
		return "Published"
	case UploadFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Terminal reports whether no further transitions happen from s.
func (s UploadStatus) Terminal() bool {
	return s == UploadPublished || s == UploadFailed
}

// InProgress matches the statuses counted as "in process" in upload summaries.
func (s UploadStatus) InProgress() bool {
	return s == UploadPending || s == UploadUploading || s == UploadProcessing
}

func (s UploadStatus) Valid() bool {
	for _, v := range UploadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Privacy values accepted by YouTube.
const (
	PrivacyPublic   = "public"
	PrivacyPrivate  = "private"
	PrivacyUnlisted = "unlisted"
)

// DefaultCategoryID is "People & Blogs".
const DefaultCategoryID = "22"

// UploadJob tracks one video upload to YouTube.
type UploadJob struct {
	Base
	AccountID      string
	YouTubeVideoID string
	Title          string
	Description    string
	Tags           string
	CategoryID     string
	Privacy        string
	FileName       string
	FilePath       string
	FileSize       int64
	Status         UploadStatus
	ErrorMessage   string
	StartedAt      time.Time
	FinishedAt     time.Time
}

func NewUploadJob(accountID, title string) *UploadJob {
	return &UploadJob{
		Base:       newBase(),
		AccountID:  accountID,
		Title:      title,
		CategoryID: DefaultCategoryID,
		Privacy:    PrivacyPrivate,
		Status:     UploadPending,
	}
}

func (j *UploadJob) Validate() error {
	switch {
	case j.AccountID == "":
		return invalid("upload requires an account")
	case strings.TrimSpace(j.Title) == "":
		return invalid("title is required")
	case len(j.Title) > 100:
		return invalid("title must be at most 100 characters")
	case len(j.Description) > 5000:
		return invalid("description must be at most 5000 characters")
	case !j.Status.Valid():
		return invalid("unknown status %q", j.Status)
	}
	switch j.Privacy {
	case PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
	default:
		return invalid("unknown privacy %q", j.Privacy)
	}
	return nil
}

// WatchURL is empty until YouTube has assigned an id.
func (j *UploadJob) WatchURL() string {
	if j.YouTubeVideoID == "" {
		return ""
	}
	return WatchURLPrefix + j.YouTubeVideoID
}

// Elapsed is the upload duration, zero unless both ends are known.
func (j *UploadJob) Elapsed() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

func (j *UploadJob) TagList() []string { return shared.SplitTags(j.Tags) }

// UploadFilter narrows an upload listing.
type UploadFilter struct {
	Search string
	Status UploadStatus
}

// UploadTotals summarises an account's uploads.
type UploadTotals struct {
	Total      int
	Published  int
	InProgress int
	Failed     int
	TotalBytes int64
}
