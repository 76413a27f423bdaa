package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgVideosLoaded MsgKind = iota
	MsgProgressUpdate
	MsgRefreshComplete
)

type videosLoaded struct {
	videos []*models.SavedVideo
	err    error
}

type refreshComplete struct {
	summary *tasks.RefreshSummary
	err     error
}

// videosLoadedMsg is the constructor for [MsgVideosLoaded]
func videosLoadedMsg(videos []*models.SavedVideo, err error) Msg {
	return Msg{kind: MsgVideosLoaded, data: videosLoaded{videos, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// refreshCompleteMsg is the constructor for [MsgRefreshComplete]
func refreshCompleteMsg(summary *tasks.RefreshSummary, err error) Msg {
	return Msg{kind: MsgRefreshComplete, data: refreshComplete{summary, err}}
}
