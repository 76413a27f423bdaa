package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
	"github.com/desertthunder/ytlink/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	DetailView
	ConfirmView
	RefreshView
	ResultView
)

const (
	// recentLines is how many progress messages stay on screen while refreshing.
	recentLines = 5
	barWidth    = 40
)

// VideoSource lists saved videos matching criteria.
type VideoSource interface {
	List(criteria map[string]any) ([]*models.SavedVideo, error)
}

// Refresher re-reads every saved video of a user from YouTube.
type Refresher interface {
	RefreshAll(ctx context.Context, user *models.User, progress chan<- tasks.ProgressUpdate) (*tasks.RefreshSummary, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	user     *models.User
	videos   VideoSource
	engine   Refresher
	view     ViewState
	width    int
	height   int
	list     list.Model
	selected *models.SavedVideo
	spinner  spinner.Model
	updates  chan tasks.ProgressUpdate
	done     chan refreshComplete
	progress tasks.ProgressUpdate
	recent   []string
	failed   []string
	summary  *tasks.RefreshSummary
	err      error
	help     help.Model
	keys     keyMap
}

func NewModel(ctx context.Context, user *models.User, videos VideoSource, engine Refresher) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Mis videos"
	return &Model{
		ctx:     ctx,
		user:    user,
		videos:  videos,
		engine:  engine,
		view:    ListView,
		list:    l,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init loads the user's saved videos.
func (m *Model) Init() tea.Cmd {
	return m.loadVideos()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(max(msg.Width-4, 0), max(msg.Height-6, 0))
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		return m, nil

	case spinner.TickMsg:
		if m.view != RefreshView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgVideosLoaded:
		data := msg.data.(videosLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(data.videos))
		for i, v := range data.videos {
			items[i] = videoItem{video: v}
		}
		return m, m.list.SetItems(items)

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.progress = update
		m.recent = append(m.recent, update.Message)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
		if update.Phase == tasks.RefreshVideo && strings.Contains(update.Message, "✗") {
			if v, ok := update.Data.(*models.SavedVideo); ok {
				m.failed = append(m.failed, v.Title)
			}
		}
		if m.updates == nil {
			return m, nil
		}
		return m, waitForProgress(m.updates, m.done)

	case MsgRefreshComplete:
		data := msg.data.(refreshComplete)
		m.summary = data.summary
		m.err = data.err
		m.view = ResultView
		m.updates, m.done = nil, nil
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.list.SelectedItem().(videoItem); ok {
			m.selected = item.video
			m.view = DetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.refreshAll):
		if len(m.list.Items()) > 0 {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ListView
		m.selected = nil
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = ListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = RefreshView
		m.recent, m.failed, m.summary, m.err = nil, nil, nil, nil
		m.progress = tasks.ProgressUpdate{}
		return m, tea.Batch(m.startRefresh(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ListView
		m.summary = nil
		m.err = nil
		return m, m.loadVideos()
	}
	return m, nil
}

func (m *Model) loadVideos() tea.Cmd {
	return func() tea.Msg {
		videos, err := m.videos.List(map[string]any{"user_id": m.user.ID()})
		return videosLoadedMsg(videos, err)
	}
}

// startRefresh runs RefreshAll in the background. The progress channel is closed before the
// result is published on done, so every update is delivered before completion.
func (m *Model) startRefresh() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan refreshComplete, 1)
	m.updates, m.done = progress, done

	go func() {
		summary, err := m.engine.RefreshAll(m.ctx, m.user, progress)
		close(progress)
		done <- refreshComplete{summary: summary, err: err}
	}()

	return waitForProgress(progress, done)
}

func waitForProgress(progress <-chan tasks.ProgressUpdate, done <-chan refreshComplete) tea.Cmd {
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		result := <-done
		return refreshCompleteMsg(result.summary, result.err)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == ListView {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.help.ShortHelpView([]key.Binding{m.keys.quit})
	}

	switch m.view {
	case ListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	case ConfirmView:
		return m.renderConfirm()
	case RefreshView:
		return m.renderRefresh()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refreshAll, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.list.View(), helpView)
}

func (m *Model) renderDetail() string {
	v := m.selected
	if v == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(v.Title))
	b.WriteString("\n")
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", styles.label.Render(label), value)
		}
	}
	row("Canal", v.ChannelTitle)
	row("Duración", v.Duration)
	row("Vistas", shared.CompactNumber(v.Views))
	row("Likes", shared.CompactNumber(v.Likes))
	row("Comentarios", shared.CompactNumber(v.Comments))
	row("Etiquetas", strings.Join(shared.SplitTags(v.Tags), ", "))
	row("URL", v.WatchURL())
	if v.Favorite {
		row("Favorito", styles.ok.Render("★"))
	}
	if v.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", styles.label.Render("Notas"), v.Notes)
	}

	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("¿Actualizar todos los videos guardados?")
	info := fmt.Sprintf("\nVideos: %d\nSe consultará YouTube por vistas, likes y comentarios.\n", len(m.list.Items()))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRefresh() string {
	title := styles.title.Render("Actualizando biblioteca")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchVideos:
		phase = fmt.Sprintf("Consultando YouTube (lote %d/%d)", m.progress.Step, m.progress.Total)
	case tasks.RefreshVideo, tasks.RefreshDone:
		phase = fmt.Sprintf("%s %d/%d", bar(m.progress.Step, m.progress.Total, barWidth), m.progress.Step, m.progress.Total)
	default:
		phase = "Preparando..."
	}

	return fmt.Sprintf("%s\n%s %s\n\n%s", title, m.spinner.View(), phase, styles.help.Render(strings.Join(m.recent, "\n")))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("La actualización falló: %v", m.err)), helpView)
	}
	if m.summary == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("Sin resultado"), helpView)
	}

	title := styles.ok.Render("✓ Biblioteca actualizada")
	info := fmt.Sprintf("\nActualizados: %d/%d", m.summary.Refreshed, m.summary.Total)

	var failed string
	if m.summary.Failed > 0 {
		failed = "\n\n" + styles.warn.Render(fmt.Sprintf("No se pudieron actualizar %d videos:", m.summary.Failed))
		for _, t := range m.failed {
			failed += "\n  • " + t
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
