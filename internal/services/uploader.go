// YouTube uploads through the generated google.golang.org/api client
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"github.com/desertthunder/ytlink/internal/shared"
)

// Processing states reported in a video's status.uploadStatus.
const (
	ProcessingUploaded  = "uploaded"
	ProcessingProcessed = "processed"
	ProcessingFailed    = "failed"
	ProcessingRejected  = "rejected"
	ProcessingDeleted   = "deleted"
)

// UploadMeta is the snippet and status of a new video.
type UploadMeta struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

// ProcessingState is the server side state of an uploaded video.
type ProcessingState struct {
	UploadStatus  string
	FailureReason string
	PrivacyStatus string
}

// Failed reports whether YouTube gave up on the video.
func (p ProcessingState) Failed() bool {
	switch p.UploadStatus {
	case ProcessingFailed, ProcessingRejected, ProcessingDeleted:
		return true
	}
	return false
}

// ProgressFunc receives the bytes sent so far and the total (0 when unknown).
type ProgressFunc func(sent, total int64)

// Uploader sends video files to YouTube with resumable media uploads.
//
// Uploads are not rate limited and carry no client timeout, the request context bounds them.
type Uploader struct {
	client    googleClient
	chunkSize int
}

// UploaderOption configures an [Uploader].
type UploaderOption func(*Uploader)

// WithUploadEndpoint overrides the API root, used by tests.
func WithUploadEndpoint(endpoint string) UploaderOption {
	return func(u *Uploader) { u.client.endpoint = endpoint }
}

// WithUploadTransport sets the base transport under the OAuth transport.
func WithUploadTransport(rt http.RoundTripper) UploaderOption {
	return func(u *Uploader) { u.client.transport = rt }
}

// WithChunkSize sets the resumable upload chunk size in bytes.
func WithChunkSize(n int) UploaderOption {
	return func(u *Uploader) { u.chunkSize = n }
}

func NewUploader(opts ...UploaderOption) *Uploader {
	u := &Uploader{chunkSize: googleapi.DefaultUploadChunkSize}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Insert uploads media as a new video and returns its YouTube ID.
func (u *Uploader) Insert(ctx context.Context, accessToken string, meta UploadMeta, media io.Reader, progress ProgressFunc) (string, error) {
	svc, err := u.client.youtube(ctx, accessToken)
	if err != nil {
		return "", err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, googleapi.ChunkSize(u.chunkSize)).
		Context(ctx)
	if progress != nil {
		call = call.ProgressUpdater(func(current, total int64) { progress(current, total) })
	}

	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrUploadFailed, googleError(err))
	}
	if uploaded.Id == "" {
		return "", fmt.Errorf("%w: response carried no video id", shared.ErrUploadFailed)
	}
	return uploaded.Id, nil
}

// Status reports the processing state of an uploaded video.
func (u *Uploader) Status(ctx context.Context, accessToken, videoID string) (ProcessingState, error) {
	svc, err := u.client.youtube(ctx, accessToken)
	if err != nil {
		return ProcessingState{}, err
	}

	resp, err := svc.Videos.List([]string{"status"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return ProcessingState{}, googleError(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Status == nil {
		return ProcessingState{}, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, videoID)
	}

	st := resp.Items[0].Status
	reason := st.FailureReason
	if reason == "" {
		reason = st.RejectionReason
	}
	return ProcessingState{UploadStatus: st.UploadStatus, FailureReason: reason, PrivacyStatus: st.PrivacyStatus}, nil
}
