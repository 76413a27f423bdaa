package tasks

import (
	"fmt"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchVideos Phase = iota
	RefreshVideo
	RecordStats
	RefreshDone
	UploadQueued
	UploadSending
	UploadProcessing
	UploadDone
	ExportThumbnail
	ExportDone
)

func (p Phase) String() string {
	switch p {
	case FetchVideos:
		return "fetch_videos"
	case RefreshVideo:
		return "refresh_video"
	case RecordStats:
		return "record_stats"
	case RefreshDone:
		return "refresh_done"
	case UploadQueued:
		return "upload_queued"
	case UploadSending:
		return "upload_sending"
	case UploadProcessing:
		return "upload_processing"
	case UploadDone:
		return "upload_done"
	case ExportThumbnail:
		return "export_thumbnail"
	case ExportDone:
		return "export_done"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchVideosUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchVideos,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching details from YouTube (batch %d/%d)...", step, total),
	}
}

func refreshVideoUpdate(step, total int, v *models.SavedVideo, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   RefreshVideo,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, v.Title, err),
			Data:    v,
		}
	}
	return ProgressUpdate{
		Phase:   RefreshVideo,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s views)", step, total, v.Title, shared.CompactNumber(v.Views)),
		Data:    v,
	}
}

func refreshDoneUpdate(summary *RefreshSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshDone,
		Step:    summary.Total,
		Total:   summary.Total,
		Message: fmt.Sprintf("Refreshed %d of %d videos (%d failed)", summary.Refreshed, summary.Total, summary.Failed),
		Data:    summary,
	}
}

func uploadQueuedUpdate(job *models.UploadJob) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadQueued,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Queued %s (%s)", job.Title, shared.HumanBytes(job.FileSize)),
		Data:    snapshot(job),
	}
}

func uploadSendingUpdate(job *models.UploadJob, sent, total int64) ProgressUpdate {
	if total <= 0 {
		total = job.FileSize
	}
	return ProgressUpdate{
		Phase:   UploadSending,
		Step:    int(sent),
		Total:   int(total),
		Message: fmt.Sprintf("Uploading %s: %s of %s", job.Title, shared.HumanBytes(sent), shared.HumanBytes(total)),
		Data:    snapshot(job),
	}
}

func uploadProcessingUpdate(job *models.UploadJob, attempt, attempts int, state string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadProcessing,
		Step:    attempt,
		Total:   attempts,
		Message: fmt.Sprintf("[%d/%d] YouTube is processing %s (%s)", attempt, attempts, job.YouTubeVideoID, state),
		Data:    snapshot(job),
	}
}

func uploadDoneUpdate(job *models.UploadJob) ProgressUpdate {
	msg := fmt.Sprintf("%s: %s", job.Title, job.Status.Label())
	if job.ErrorMessage != "" {
		msg += " (" + job.ErrorMessage + ")"
	}
	return ProgressUpdate{
		Phase:   UploadDone,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    snapshot(job),
	}
}

func exportThumbnailUpdate(step, total int, videoID string, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ thumbnail %s", step, total, videoID)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ thumbnail %s: %v", step, total, videoID, err)
	}
	return ProgressUpdate{Phase: ExportThumbnail, Step: step, Total: total, Message: msg}
}

func exportDoneUpdate(result *ExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportDone,
		Step:    result.Videos,
		Total:   result.Videos,
		Message: fmt.Sprintf("Exported %d videos to %s", result.Videos, result.ManifestPath),
		Data:    result,
	}
}

// snapshot copies job so receivers never share it with the upload goroutine.
func snapshot(job *models.UploadJob) *models.UploadJob {
	c := *job
	return &c
}
