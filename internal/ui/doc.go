// Package ui implements an interactive terminal browser for a user's saved videos using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow:
//  1. [ListView] : Browse saved videos, filterable with /
//  2. [DetailView] : Inspect one video's counters, tags and notes
//  3. [ConfirmView] : Confirm refreshing the whole library
//  4. [RefreshView] : Monitor real-time progress updates
//  5. [ResultView] : Display refreshed and failed counts
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from [tasks.LibraryEngine.RefreshAll], providing non-blocking status reporting.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, a, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
