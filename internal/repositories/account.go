package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// AccountRepository implements [models.Repository] for linked [models.YouTubeAccount] records.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, channel_id, channel_name, email, avatar_url, description, channel_url,
	access_token, refresh_token, token_expiry, subscribers, video_count, view_count, monitoring,
	refresh_minutes, linked_at, created_at, updated_at`

// Create inserts a new account. A channel can only be linked once and a user can link one channel.
func (r *AccountRepository) Create(a *models.YouTubeAccount) error {
	if a.ID() == "" {
		a.SetID(shared.GenerateID())
	}
	if a.URL == "" {
		a.URL = a.ChannelURL()
	}

	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO youtube_accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		a.ID(), a.UserID, a.ChannelID, a.ChannelName, a.Email, a.AvatarURL, a.Description, a.URL,
		a.AccessToken, a.RefreshToken, nullTime(a.TokenExpiry), a.Subscribers, a.VideoCount, a.ViewCount,
		a.Monitoring, a.RefreshMinutes, a.LinkedAt.UTC(), a.CreatedAt(), a.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("channel %s %w", a.ChannelID, shared.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID
func (r *AccountRepository) Get(id string) (*models.YouTubeAccount, error) {
	return r.getBy("id", id)
}

// GetByUser retrieves the account linked by a user
func (r *AccountRepository) GetByUser(userID string) (*models.YouTubeAccount, error) {
	return r.getBy("user_id", userID)
}

// GetByChannel retrieves the account for a YouTube channel ID
func (r *AccountRepository) GetByChannel(channelID string) (*models.YouTubeAccount, error) {
	return r.getBy("channel_id", channelID)
}

func (r *AccountRepository) getBy(column, value string) (*models.YouTubeAccount, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM youtube_accounts WHERE `+column+` = ?`, value)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

// Update writes every mutable column of a
func (r *AccountRepository) Update(a *models.YouTubeAccount) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.SetUpdatedAt(now())

	query := `
		UPDATE youtube_accounts
		SET channel_name = ?, email = ?, avatar_url = ?, description = ?, channel_url = ?,
			access_token = ?, refresh_token = ?, token_expiry = ?, subscribers = ?, video_count = ?,
			view_count = ?, monitoring = ?, refresh_minutes = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		a.ChannelName, a.Email, a.AvatarURL, a.Description, a.URL,
		a.AccessToken, a.RefreshToken, nullTime(a.TokenExpiry), a.Subscribers, a.VideoCount,
		a.ViewCount, a.Monitoring, a.RefreshMinutes, a.UpdatedAt(), a.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectAffected(result, "account", a.ID())
}

// UpdateToken persists only the token columns, used after a refresh.
func (r *AccountRepository) UpdateToken(a *models.YouTubeAccount) error {
	a.SetUpdatedAt(now())
	result, err := r.db.Exec(
		`UPDATE youtube_accounts SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ? WHERE id = ?`,
		a.AccessToken, a.RefreshToken, nullTime(a.TokenExpiry), a.UpdatedAt(), a.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectAffected(result, "account", a.ID())
}

// Delete unlinks an account. Snapshots and uploads cascade.
func (r *AccountRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM youtube_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectAffected(result, "account", id)
}

// List retrieves accounts matching criteria ("monitoring" bool, "user_id" string)
func (r *AccountRepository) List(criteria map[string]any) ([]*models.YouTubeAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM youtube_accounts WHERE 1 = 1`
	args := []any{}

	if monitoring, ok := criteria["monitoring"].(bool); ok {
		query += " AND monitoring = ?"
		args = append(args, monitoring)
	}
	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY linked_at ASC, rowid ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.YouTubeAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return accounts, nil
}

func scanAccount(s scanner) (*models.YouTubeAccount, error) {
	var (
		a                  models.YouTubeAccount
		id                 string
		expiry             sql.NullTime
		createdAt, updated time.Time
	)
	err := s.Scan(
		&id, &a.UserID, &a.ChannelID, &a.ChannelName, &a.Email, &a.AvatarURL, &a.Description, &a.URL,
		&a.AccessToken, &a.RefreshToken, &expiry, &a.Subscribers, &a.VideoCount, &a.ViewCount, &a.Monitoring,
		&a.RefreshMinutes, &a.LinkedAt, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	a.SetID(id)
	a.SetCreatedAt(createdAt)
	a.SetUpdatedAt(updated)
	if expiry.Valid {
		a.TokenExpiry = expiry.Time
	}
	return &a, nil
}

// SnapshotRepository stores daily [models.ChannelSnapshot] rows.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, account_id, recorded_on, subscribers, view_count, video_count,
	subscriber_growth, view_growth, created_at, updated_at`

// Upsert writes the snapshot for (account, day), replacing the counters of an existing one.
func (r *SnapshotRepository) Upsert(s *models.ChannelSnapshot) error {
	if s.ID() == "" {
		s.SetID(shared.GenerateID())
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.SetUpdatedAt(now())

	query := `
		INSERT INTO channel_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, recorded_on) DO UPDATE SET
			subscribers = excluded.subscribers,
			view_count = excluded.view_count,
			video_count = excluded.video_count,
			subscriber_growth = excluded.subscriber_growth,
			view_growth = excluded.view_growth,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query,
		s.ID(), s.AccountID, s.RecordedOn, s.Subscribers, s.ViewCount, s.VideoCount,
		s.SubscriberGrowth, s.ViewGrowth, s.CreatedAt(), s.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Previous returns the latest snapshot strictly before day, or nil when there is none.
func (r *SnapshotRepository) Previous(accountID, day string) (*models.ChannelSnapshot, error) {
	row := r.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM channel_snapshots
		WHERE account_id = ? AND recorded_on < ? ORDER BY recorded_on DESC LIMIT 1`,
		accountID, day,
	)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return s, nil
}

// Recent returns up to n snapshots, newest first.
func (r *SnapshotRepository) Recent(accountID string, n int) ([]*models.ChannelSnapshot, error) {
	rows, err := r.db.Query(
		`SELECT `+snapshotColumns+` FROM channel_snapshots WHERE account_id = ? ORDER BY recorded_on DESC LIMIT ?`,
		accountID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.ChannelSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(sc scanner) (*models.ChannelSnapshot, error) {
	var (
		s                  models.ChannelSnapshot
		id                 string
		createdAt, updated time.Time
	)
	err := sc.Scan(&id, &s.AccountID, &s.RecordedOn, &s.Subscribers, &s.ViewCount, &s.VideoCount,
		&s.SubscriberGrowth, &s.ViewGrowth, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	s.SetID(id)
	s.SetCreatedAt(createdAt)
	s.SetUpdatedAt(updated)
	return &s, nil
}

// OAuthErrorRepository stores [models.OAuthErrorLog] entries.
type OAuthErrorRepository struct {
	db *sql.DB
}

func NewOAuthErrorRepository(db *sql.DB) *OAuthErrorRepository {
	return &OAuthErrorRepository{db: db}
}

func (r *OAuthErrorRepository) Create(e *models.OAuthErrorLog) error {
	if e.ID() == "" {
		e.SetID(shared.GenerateID())
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, err := r.db.Exec(
		`INSERT INTO oauth_error_logs (id, user_id, kind, description, request_url, api_response, resolved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID(), nullString(e.UserID), e.Kind, e.Description, e.RequestURL, e.APIResponse, e.Resolved,
		e.CreatedAt(), e.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert oauth error: %w", err)
	}
	return nil
}

// Unresolved lists up to limit unresolved errors, newest first.
func (r *OAuthErrorRepository) Unresolved(limit int) ([]*models.OAuthErrorLog, error) {
	rows, err := r.db.Query(
		`SELECT id, COALESCE(user_id, ''), kind, description, request_url, api_response, resolved, created_at, updated_at
		FROM oauth_error_logs WHERE resolved = 0 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query oauth errors: %w", err)
	}
	defer rows.Close()

	var logs []*models.OAuthErrorLog
	for rows.Next() {
		var (
			e                  models.OAuthErrorLog
			id                 string
			createdAt, updated time.Time
		)
		if err := rows.Scan(&id, &e.UserID, &e.Kind, &e.Description, &e.RequestURL, &e.APIResponse,
			&e.Resolved, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan oauth error: %w", err)
		}
		e.SetID(id)
		e.SetCreatedAt(createdAt)
		e.SetUpdatedAt(updated)
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}

// Resolve marks an error as handled.
func (r *OAuthErrorRepository) Resolve(id string) error {
	result, err := r.db.Exec(`UPDATE oauth_error_logs SET resolved = 1, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve oauth error: %w", err)
	}
	return expectAffected(result, "oauth error", id)
}
