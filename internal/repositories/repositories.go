package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/desertthunder/ytlink/internal/shared"
)

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %w: %s", kind, shared.ErrNotFound, id)
}

// isUniqueViolation reports whether err is a sqlite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// expectAffected turns a zero-row UPDATE or DELETE into a not found error.
func expectAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound(kind, id)
	}
	return nil
}

// nullTime stores zero times as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// likePattern escapes s for a LIKE ... ESCAPE '\' match anywhere in the column.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}

func now() time.Time { return time.Now().UTC() }

// Store groups the repositories of one database.
type Store struct {
	Users       *UserRepository
	Sessions    *SessionRepository
	Accounts    *AccountRepository
	Snapshots   *SnapshotRepository
	OAuthErrors *OAuthErrorRepository
	Videos      *SavedVideoRepository
	Stats       *VideoStatRepository
	Searches    *SearchRepository
	Uploads     *UploadRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Users:       NewUserRepository(db),
		Sessions:    NewSessionRepository(db),
		Accounts:    NewAccountRepository(db),
		Snapshots:   NewSnapshotRepository(db),
		OAuthErrors: NewOAuthErrorRepository(db),
		Videos:      NewSavedVideoRepository(db),
		Stats:       NewVideoStatRepository(db),
		Searches:    NewSearchRepository(db),
		Uploads:     NewUploadRepository(db),
	}
}
