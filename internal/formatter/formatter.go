// package formatter exports a user's saved videos to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// Supported export formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
	FormatJSON     = "json"
)

// Formats lists the accepted values of an export format flag.
var Formats = []string{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// LibraryExport is one user's saved videos at a point in time.
type LibraryExport struct {
	Username   string               `json:"username"`
	ExportedAt time.Time            `json:"exported_at"`
	Videos     []*models.SavedVideo `json:"-"`
}

// exportedVideo is the JSON shape of a saved video.
type exportedVideo struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	Duration     string    `json:"duration,omitempty"`
	Views        int64     `json:"views"`
	Likes        int64     `json:"likes"`
	Comments     int64     `json:"comments"`
	PublishedAt  time.Time `json:"published_at,omitzero"`
	Tags         []string  `json:"tags,omitempty"`
	Favorite     bool      `json:"favorite"`
	Notes        string    `json:"notes,omitempty"`
	URL          string    `json:"url"`
}

func toExported(v *models.SavedVideo) exportedVideo {
	return exportedVideo{
		VideoID:      v.VideoID,
		Title:        v.Title,
		ChannelTitle: v.ChannelTitle,
		Duration:     v.Duration,
		Views:        v.Views,
		Likes:        v.Likes,
		Comments:     v.Comments,
		PublishedAt:  v.PublishedAt,
		Tags:         v.TagList(),
		Favorite:     v.Favorite,
		Notes:        v.Notes,
		URL:          v.WatchURL(),
	}
}

// ExportToCSV converts a LibraryExport to CSV format with columns: ID, Title, Channel, Duration, Views, Likes, Comments, URL
func ExportToCSV(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Channel", "Duration", "Views", "Likes", "Comments", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range export.Videos {
		record := []string{
			v.VideoID,
			v.Title,
			v.ChannelTitle,
			v.Duration,
			strconv.FormatInt(v.Views, 10),
			strconv.FormatInt(v.Likes, 10),
			strconv.FormatInt(v.Comments, 10),
			v.WatchURL(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown converts a LibraryExport to Markdown.
//
// thumbnails maps video ids to local image files; videos without one link the remote thumbnail.
func ExportToMarkdown(export *LibraryExport, thumbnails map[string]string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Saved videos of %s\n\n", export.Username)
	fmt.Fprintf(&buf, "**Videos**: %d\n", len(export.Videos))
	fmt.Fprintf(&buf, "**Exported**: %s\n\n", export.ExportedAt.Format(time.DateTime))

	for i, v := range export.Videos {
		fmt.Fprintf(&buf, "## %d. [%s](%s)\n\n", i+1, v.Title, v.WatchURL())
		if img, ok := thumbnails[v.VideoID]; ok {
			fmt.Fprintf(&buf, "![%s](%s)\n\n", v.VideoID, img)
		} else if v.ThumbnailURL != "" {
			fmt.Fprintf(&buf, "![%s](%s)\n\n", v.VideoID, v.ThumbnailURL)
		}
		if v.ChannelTitle != "" {
			fmt.Fprintf(&buf, "**Channel**: %s\n", v.ChannelTitle)
		}
		if v.Duration != "" {
			fmt.Fprintf(&buf, "**Duration**: %s\n", v.Duration)
		}
		fmt.Fprintf(&buf, "**Views**: %s · **Likes**: %s\n", shared.CompactNumber(v.Views), shared.CompactNumber(v.Likes))
		if tags := v.TagList(); len(tags) > 0 {
			fmt.Fprintf(&buf, "**Tags**: %s\n", strings.Join(tags, ", "))
		}
		if v.Notes != "" {
			fmt.Fprintf(&buf, "\n> %s\n", strings.ReplaceAll(v.Notes, "\n", "\n> "))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// ExportToText converts a LibraryExport to plain text format
func ExportToText(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Saved videos: %s\n", export.Username)
	fmt.Fprintf(&buf, "Videos: %d\n\n", len(export.Videos))

	for i, v := range export.Videos {
		star := ""
		if v.Favorite {
			star = " *"
		}
		fmt.Fprintf(&buf, "%d. %s [%s]%s\n   %s\n", i+1, v.Title, v.Duration, star, v.WatchURL())
	}
	return buf.Bytes(), nil
}

// ExportToJSON converts a LibraryExport to indented JSON.
func ExportToJSON(export *LibraryExport) ([]byte, error) {
	videos := make([]exportedVideo, 0, len(export.Videos))
	for _, v := range export.Videos {
		videos = append(videos, toExported(v))
	}
	return json.MarshalIndent(struct {
		*LibraryExport
		Videos []exportedVideo `json:"videos"`
	}{export, videos}, "", "  ")
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty URL provided", shared.ErrMissingArgument)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Write renders export in format and writes it into dir.
//
// Creates videos.csv, README.md, videos.txt or videos.json. Markdown also receives thumbnails,
// which are expected to already live in dir.
func Write(export *LibraryExport, format, dir string, thumbnails map[string]string) (string, error) {
	var (
		data []byte
		name string
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = ExportToCSV(export)
		name = "videos.csv"
	case FormatMarkdown:
		data, err = ExportToMarkdown(export, thumbnails)
		name = "README.md"
	case FormatText:
		data, err = ExportToText(export)
		name = "videos.txt"
	case FormatJSON:
		data, err = ExportToJSON(export)
		name = "videos.json"
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidInput, format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate %s export: %w", format, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return path, nil
}

// Manifest summarises an export run.
type Manifest struct {
	Username     string    `json:"username"`
	Format       string    `json:"format"`
	ExportedAt   time.Time `json:"exported_at"`
	Videos       int       `json:"videos"`
	Thumbnails   int       `json:"thumbnails"`
	FailedImages []string  `json:"failed_images,omitempty"`
	Files        []string  `json:"files"`
}

// WriteManifest writes m as export_manifest.json in dir.
func WriteManifest(m *Manifest, dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(dir, "export_manifest.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
