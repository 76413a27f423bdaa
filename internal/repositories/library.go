package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// LibraryPageSize is the number of saved videos per page.
const LibraryPageSize = 12

// SavedVideoRepository implements [models.Repository] for a user's [models.SavedVideo] library.
type SavedVideoRepository struct {
	db *sql.DB
}

// NewSavedVideoRepository creates a new [SavedVideoRepository] with the given database connection
func NewSavedVideoRepository(db *sql.DB) *SavedVideoRepository {
	return &SavedVideoRepository{db: db}
}

const savedVideoColumns = `id, user_id, video_id, title, description, channel_title, channel_id, thumbnail_url,
	published_at, views, likes, comments, duration, category_id, tags, favorite, notes, watched,
	created_at, updated_at`

// Create saves a video for a user. Saving the same video twice returns [shared.ErrAlreadySaved].
func (r *SavedVideoRepository) Create(v *models.SavedVideo) error {
	if v.ID() == "" {
		v.SetID(shared.GenerateID())
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO saved_videos (` + savedVideoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query,
		v.ID(), v.UserID, v.VideoID, v.Title, v.Description, v.ChannelTitle, v.ChannelID, v.ThumbnailURL,
		nullTime(v.PublishedAt), v.Views, v.Likes, v.Comments, v.Duration, v.CategoryID, v.Tags, v.Favorite,
		v.Notes, v.Watched, v.CreatedAt(), v.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrAlreadySaved, v.VideoID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert saved video: %w", err)
	}
	return nil
}

// Get retrieves a saved video by ID
func (r *SavedVideoRepository) Get(id string) (*models.SavedVideo, error) {
	return r.getOne(`id = ?`, id)
}

// GetForUser retrieves a saved video by ID only if it belongs to userID
func (r *SavedVideoRepository) GetForUser(userID, id string) (*models.SavedVideo, error) {
	return r.getOne(`id = ? AND user_id = ?`, id, userID)
}

// GetByVideoID retrieves a user's saved copy of a YouTube video
func (r *SavedVideoRepository) GetByVideoID(userID, videoID string) (*models.SavedVideo, error) {
	return r.getOne(`user_id = ? AND video_id = ?`, userID, videoID)
}

// Exists reports whether the user already saved videoID
func (r *SavedVideoRepository) Exists(userID, videoID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM saved_videos WHERE user_id = ? AND video_id = ?)`, userID, videoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check saved video: %w", err)
	}
	return exists, nil
}

func (r *SavedVideoRepository) getOne(where string, args ...any) (*models.SavedVideo, error) {
	row := r.db.QueryRow(`SELECT `+savedVideoColumns+` FROM saved_videos WHERE `+where, args...)
	v, err := scanSavedVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("saved video", fmt.Sprint(args[0]))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query saved video: %w", err)
	}
	return v, nil
}

// Update writes the metadata, counters and user fields of v
func (r *SavedVideoRepository) Update(v *models.SavedVideo) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	v.SetUpdatedAt(now())

	query := `
		UPDATE saved_videos
		SET title = ?, description = ?, channel_title = ?, channel_id = ?, thumbnail_url = ?, published_at = ?,
			views = ?, likes = ?, comments = ?, duration = ?, category_id = ?, tags = ?, favorite = ?, notes = ?,
			watched = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		v.Title, v.Description, v.ChannelTitle, v.ChannelID, v.ThumbnailURL, nullTime(v.PublishedAt),
		v.Views, v.Likes, v.Comments, v.Duration, v.CategoryID, v.Tags, v.Favorite, v.Notes,
		v.Watched, v.UpdatedAt(), v.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update saved video: %w", err)
	}
	return expectAffected(result, "saved video", v.ID())
}

// Delete removes a saved video and its daily stats
func (r *SavedVideoRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM saved_videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved video: %w", err)
	}
	return expectAffected(result, "saved video", id)
}

// List retrieves saved videos matching criteria ("user_id", "category_id", "favorite")
func (r *SavedVideoRepository) List(criteria map[string]any) ([]*models.SavedVideo, error) {
	where, args := "1 = 1", []any{}
	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		where += " AND user_id = ?"
		args = append(args, userID)
	}
	if category, ok := criteria["category_id"].(string); ok && category != "" {
		where += " AND category_id = ?"
		args = append(args, category)
	}
	if favorite, ok := criteria["favorite"].(bool); ok {
		where += " AND favorite = ?"
		args = append(args, favorite)
	}
	return r.query(`SELECT `+savedVideoColumns+` FROM saved_videos WHERE `+where+
		` ORDER BY created_at DESC, rowid DESC`, args...)
}

func libraryWhere(userID string, f models.LibraryFilter) (string, []any) {
	where, args := "user_id = ?", []any{userID}
	if f.Search != "" {
		p := likePattern(f.Search)
		where += ` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR channel_title LIKE ? ESCAPE '\')`
		args = append(args, p, p, p)
	}
	if f.CategoryID != "" {
		where += " AND category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.FavoriteOnly {
		where += " AND favorite = 1"
	}
	return where, args
}

// Filter returns one page of a user's library, newest saves first.
func (r *SavedVideoRepository) Filter(userID string, f models.LibraryFilter, page, size int) ([]*models.SavedVideo, models.Page, error) {
	where, args := libraryWhere(userID, f)

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM saved_videos WHERE `+where, args...).Scan(&total); err != nil {
		return nil, models.Page{}, fmt.Errorf("failed to count saved videos: %w", err)
	}

	p := models.NewPage(page, size, total)
	videos, err := r.query(
		`SELECT `+savedVideoColumns+` FROM saved_videos WHERE `+where+
			` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, p.Size, p.Offset())...,
	)
	if err != nil {
		return nil, models.Page{}, err
	}
	p.Entries = len(videos)
	return videos, p, nil
}

// Totals aggregates the counters of the saved videos of a user that match f.
func (r *SavedVideoRepository) Totals(userID string, f models.LibraryFilter) (models.LibraryTotals, error) {
	where, args := libraryWhere(userID, f)

	var t models.LibraryTotals
	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(views), 0), COALESCE(SUM(likes), 0), COALESCE(SUM(comments), 0)
		FROM saved_videos WHERE `+where, args...,
	).Scan(&t.Videos, &t.Views, &t.Likes, &t.Comments)
	if err != nil {
		return t, fmt.Errorf("failed to aggregate saved videos: %w", err)
	}
	return t, nil
}

// Categories lists the distinct non-empty category IDs in a user's library.
func (r *SavedVideoRepository) Categories(userID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT DISTINCT category_id FROM saved_videos WHERE user_id = ? AND category_id != '' ORDER BY category_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Related returns up to limit other videos of the same user in the same category.
func (r *SavedVideoRepository) Related(v *models.SavedVideo, limit int) ([]*models.SavedVideo, error) {
	if v.CategoryID == "" {
		return nil, nil
	}
	return r.query(
		`SELECT `+savedVideoColumns+` FROM saved_videos
		WHERE user_id = ? AND category_id = ? AND id != ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		v.UserID, v.CategoryID, v.ID(), limit,
	)
}

func (r *SavedVideoRepository) query(query string, args ...any) ([]*models.SavedVideo, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.SavedVideo
	for rows.Next() {
		v, err := scanSavedVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return videos, nil
}

func scanSavedVideo(s scanner) (*models.SavedVideo, error) {
	var (
		v                  models.SavedVideo
		id                 string
		published          sql.NullTime
		createdAt, updated time.Time
	)
	err := s.Scan(
		&id, &v.UserID, &v.VideoID, &v.Title, &v.Description, &v.ChannelTitle, &v.ChannelID, &v.ThumbnailURL,
		&published, &v.Views, &v.Likes, &v.Comments, &v.Duration, &v.CategoryID, &v.Tags, &v.Favorite,
		&v.Notes, &v.Watched, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	v.SetID(id)
	v.SetCreatedAt(createdAt)
	v.SetUpdatedAt(updated)
	if published.Valid {
		v.PublishedAt = published.Time
	}
	return &v, nil
}

// VideoStatRepository stores daily [models.VideoStat] rows.
type VideoStatRepository struct {
	db *sql.DB
}

func NewVideoStatRepository(db *sql.DB) *VideoStatRepository {
	return &VideoStatRepository{db: db}
}

const videoStatColumns = `id, saved_video_id, recorded_on, views, likes, comments, view_growth, created_at, updated_at`

// Upsert writes the stat for (video, day), replacing the counters of an existing one.
func (r *VideoStatRepository) Upsert(s *models.VideoStat) error {
	if s.ID() == "" {
		s.SetID(shared.GenerateID())
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.SetUpdatedAt(now())

	_, err := r.db.Exec(`
		INSERT INTO video_stats (`+videoStatColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(saved_video_id, recorded_on) DO UPDATE SET
			views = excluded.views,
			likes = excluded.likes,
			comments = excluded.comments,
			view_growth = excluded.view_growth,
			updated_at = excluded.updated_at`,
		s.ID(), s.SavedVideoID, s.RecordedOn, s.Views, s.Likes, s.Comments, s.ViewGrowth, s.CreatedAt(), s.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert video stat: %w", err)
	}
	return nil
}

// Previous returns the latest stat strictly before day, or nil.
func (r *VideoStatRepository) Previous(savedVideoID, day string) (*models.VideoStat, error) {
	stats, err := r.list(
		`WHERE saved_video_id = ? AND recorded_on < ? ORDER BY recorded_on DESC LIMIT 1`, savedVideoID, day,
	)
	if err != nil || len(stats) == 0 {
		return nil, err
	}
	return stats[0], nil
}

// Recent returns up to n stats, newest first.
func (r *VideoStatRepository) Recent(savedVideoID string, n int) ([]*models.VideoStat, error) {
	return r.list(`WHERE saved_video_id = ? ORDER BY recorded_on DESC LIMIT ?`, savedVideoID, n)
}

func (r *VideoStatRepository) list(tail string, args ...any) ([]*models.VideoStat, error) {
	rows, err := r.db.Query(`SELECT `+videoStatColumns+` FROM video_stats `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query video stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.VideoStat
	for rows.Next() {
		var (
			s                  models.VideoStat
			id                 string
			createdAt, updated time.Time
		)
		if err := rows.Scan(&id, &s.SavedVideoID, &s.RecordedOn, &s.Views, &s.Likes, &s.Comments,
			&s.ViewGrowth, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan video stat: %w", err)
		}
		s.SetID(id)
		s.SetCreatedAt(createdAt)
		s.SetUpdatedAt(updated)
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// SearchRepository stores a user's [models.SearchRecord] history.
type SearchRepository struct {
	db *sql.DB
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

func (r *SearchRepository) Create(s *models.SearchRecord) error {
	if s.ID() == "" {
		s.SetID(shared.GenerateID())
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, err := r.db.Exec(
		`INSERT INTO search_records (id, user_id, query, result_count, params, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID(), s.UserID, s.Query, s.ResultCount, s.Params, s.CreatedAt(), s.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search record: %w", err)
	}
	return nil
}

// Recent returns a user's last n searches, newest first.
func (r *SearchRepository) Recent(userID string, n int) ([]*models.SearchRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, query, result_count, params, created_at, updated_at
		FROM search_records WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	var records []*models.SearchRecord
	for rows.Next() {
		var (
			s                  models.SearchRecord
			id                 string
			createdAt, updated time.Time
		)
		if err := rows.Scan(&id, &s.UserID, &s.Query, &s.ResultCount, &s.Params, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan search record: %w", err)
		}
		s.SetID(id)
		s.SetCreatedAt(createdAt)
		s.SetUpdatedAt(updated)
		records = append(records, &s)
	}
	return records, rows.Err()
}
