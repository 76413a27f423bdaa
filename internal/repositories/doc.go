// Package repositories implements SQLite persistence for the domain entities.
//
// Each repository implements models.Repository[T] for one entity and adds the lookups the web
// handlers and tasks need. Constraint violations surface as [shared.ErrAlreadyExists] or
// [shared.ErrAlreadySaved], and missing rows as [shared.ErrNotFound].
//
// Key Implementations:
//   - [UserRepository] : local users with username and email lookups
//   - [SessionRepository] : browser sessions keyed by an opaque token
//   - [AccountRepository] : the linked YouTube channel and its OAuth tokens
//   - [SnapshotRepository] : one row of channel counters per day
//   - [SavedVideoRepository] : the user's library with filtering and paging
//   - [UploadRepository] : upload jobs and their lifecycle
//
// [Store] groups the repositories of one database.
package repositories
