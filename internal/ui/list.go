package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

var _ list.Item = videoItem{}

// videoItem wraps [models.SavedVideo] to implement [list.Item].
type videoItem struct {
	video *models.SavedVideo
}

func (i videoItem) FilterValue() string { return i.video.Title + " " + i.video.ChannelTitle }

func (i videoItem) Title() string {
	if i.video.Favorite {
		return "★ " + i.video.Title
	}
	return i.video.Title
}

func (i videoItem) Description() string {
	desc := fmt.Sprintf("%s views", shared.CompactNumber(i.video.Views))
	if i.video.Duration != "" {
		desc = fmt.Sprintf("%s • %s", i.video.Duration, desc)
	}
	if i.video.ChannelTitle != "" {
		desc = fmt.Sprintf("%s • %s", i.video.ChannelTitle, desc)
	}
	return desc
}
