// Package tasks orchestrates account linking, the saved-video library and uploads on top of the
// Google clients and the repositories.
//
// # Engines
//
//  1. [AccountLinker] : Google account lifecycle
//     - Links a channel from an OAuth callback code, creating the local user when needed
//     - Keeps access tokens fresh and records every OAuth failure in the error log
//     - Refreshes channel counters into daily snapshots with growth
//     - Unlinks by revoking the grant (best effort) and deleting the account
//
//  2. [LibraryEngine] : saved videos and searches
//     - Searches with history, bookmarks videos, refreshes their stats
//     - RefreshAll batches ids 50 at a time with bounded concurrency
//     - Export writes the library to CSV, Markdown, text or JSON
//
//  3. [UploadEngine] : background uploads
//     - Validates and stores files, then uploads and polls processing in a goroutine per job
//     - Resume picks up jobs left unfinished by a previous process
//
// # Progress Reporting
//
// Long operations accept an optional channel of [ProgressUpdate]. Sends never block: updates are dropped
// when the receiver is not keeping up.
//
// # Dependencies
//
// Engines depend on the small [Authenticator], [YouTubeAPI] and [VideoUploader] interfaces, implemented by
// package services and by the fakes in internal/testing.
package tasks
