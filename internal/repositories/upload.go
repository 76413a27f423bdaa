package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// UploadPageSize is the number of uploads per page.
const UploadPageSize = 10

// UploadRepository implements [models.Repository] for [models.UploadJob] records.
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new [UploadRepository] with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

const uploadColumns = `id, account_id, youtube_video_id, title, description, tags, category_id, privacy,
	file_name, file_path, file_size, status, error_message, started_at, finished_at, created_at, updated_at`

func (r *UploadRepository) Create(j *models.UploadJob) error {
	if j.ID() == "" {
		j.SetID(shared.GenerateID())
	}
	if err := j.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec(`INSERT INTO upload_jobs (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID(), j.AccountID, j.YouTubeVideoID, j.Title, j.Description, j.Tags, j.CategoryID, j.Privacy,
		j.FileName, j.FilePath, j.FileSize, j.Status, j.ErrorMessage, nullTime(j.StartedAt), nullTime(j.FinishedAt),
		j.CreatedAt(), j.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

func (r *UploadRepository) Get(id string) (*models.UploadJob, error) {
	return r.getOne(`id = ?`, id)
}

// GetForAccount retrieves an upload only if it belongs to accountID
func (r *UploadRepository) GetForAccount(accountID, id string) (*models.UploadJob, error) {
	return r.getOne(`id = ? AND account_id = ?`, id, accountID)
}

func (r *UploadRepository) getOne(where string, args ...any) (*models.UploadJob, error) {
	row := r.db.QueryRow(`SELECT `+uploadColumns+` FROM upload_jobs WHERE `+where, args...)
	j, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("upload", fmt.Sprint(args[0]))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload: %w", err)
	}
	return j, nil
}

// Update writes the lifecycle columns of j
func (r *UploadRepository) Update(j *models.UploadJob) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	j.SetUpdatedAt(now())

	result, err := r.db.Exec(`
		UPDATE upload_jobs
		SET youtube_video_id = ?, title = ?, description = ?, tags = ?, category_id = ?, privacy = ?,
			file_name = ?, file_path = ?, file_size = ?, status = ?, error_message = ?, started_at = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ?`,
		j.YouTubeVideoID, j.Title, j.Description, j.Tags, j.CategoryID, j.Privacy,
		j.FileName, j.FilePath, j.FileSize, j.Status, j.ErrorMessage, nullTime(j.StartedAt),
		nullTime(j.FinishedAt), j.UpdatedAt(), j.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	return expectAffected(result, "upload", j.ID())
}

func (r *UploadRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM upload_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return expectAffected(result, "upload", id)
}

// List retrieves uploads matching criteria ("account_id", "status"), newest first
func (r *UploadRepository) List(criteria map[string]any) ([]*models.UploadJob, error) {
	where, args := "1 = 1", []any{}
	if accountID, ok := criteria["account_id"].(string); ok && accountID != "" {
		where += " AND account_id = ?"
		args = append(args, accountID)
	}
	if status, ok := criteria["status"].(models.UploadStatus); ok && status != "" {
		where += " AND status = ?"
		args = append(args, status)
	}
	return r.query(`SELECT `+uploadColumns+` FROM upload_jobs WHERE `+where+` ORDER BY created_at DESC, rowid DESC`, args...)
}

// Recent returns the latest n uploads of an account.
func (r *UploadRepository) Recent(accountID string, n int) ([]*models.UploadJob, error) {
	return r.query(
		`SELECT `+uploadColumns+` FROM upload_jobs WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		accountID, n,
	)
}

func uploadWhere(accountID string, f models.UploadFilter) (string, []any) {
	where, args := "account_id = ?", []any{accountID}
	if f.Search != "" {
		p := likePattern(f.Search)
		where += ` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`
		args = append(args, p, p)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	return where, args
}

// Filter returns one page of an account's uploads, newest first.
func (r *UploadRepository) Filter(accountID string, f models.UploadFilter, page, size int) ([]*models.UploadJob, models.Page, error) {
	where, args := uploadWhere(accountID, f)

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM upload_jobs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, models.Page{}, fmt.Errorf("failed to count uploads: %w", err)
	}

	p := models.NewPage(page, size, total)
	jobs, err := r.query(
		`SELECT `+uploadColumns+` FROM upload_jobs WHERE `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, p.Size, p.Offset())...,
	)
	if err != nil {
		return nil, models.Page{}, err
	}
	p.Entries = len(jobs)
	return jobs, p, nil
}

// Totals summarises the uploads of an account that match f.
func (r *UploadRepository) Totals(accountID string, f models.UploadFilter) (models.UploadTotals, error) {
	where, args := uploadWhere(accountID, f)

	var t models.UploadTotals
	err := r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(file_size), 0)
		FROM upload_jobs WHERE `+where,
		append([]any{
			models.UploadPublished, models.UploadPending, models.UploadUploading, models.UploadProcessing,
			models.UploadFailed,
		}, args...)...,
	).Scan(&t.Total, &t.Published, &t.InProgress, &t.Failed, &t.TotalBytes)
	if err != nil {
		return t, fmt.Errorf("failed to aggregate uploads: %w", err)
	}
	return t, nil
}

// Unfinished lists uploads interrupted before reaching a terminal status, oldest first.
// Jobs left processing after their last poll carry finished_at and are not resumed.
func (r *UploadRepository) Unfinished() ([]*models.UploadJob, error) {
	return r.query(
		`SELECT `+uploadColumns+` FROM upload_jobs
		WHERE status IN (?, ?, ?) AND finished_at IS NULL ORDER BY created_at ASC, rowid ASC`,
		models.UploadPending, models.UploadUploading, models.UploadProcessing,
	)
}

func (r *UploadRepository) query(query string, args ...any) ([]*models.UploadJob, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var jobs []*models.UploadJob
	for rows.Next() {
		j, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

func scanUpload(s scanner) (*models.UploadJob, error) {
	var (
		j                  models.UploadJob
		id                 string
		started, finished  sql.NullTime
		createdAt, updated time.Time
	)
	err := s.Scan(
		&id, &j.AccountID, &j.YouTubeVideoID, &j.Title, &j.Description, &j.Tags, &j.CategoryID, &j.Privacy,
		&j.FileName, &j.FilePath, &j.FileSize, &j.Status, &j.ErrorMessage, &started, &finished, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	j.SetID(id)
	j.SetCreatedAt(createdAt)
	j.SetUpdatedAt(updated)
	if started.Valid {
		j.StartedAt = started.Time
	}
	if finished.Valid {
		j.FinishedAt = finished.Time
	}
	return &j, nil
}
