package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

// UserRepository implements [models.Repository] for user [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, first_name, created_at, updated_at`

// Create inserts a new user into the database with a generated ID
func (r *UserRepository) Create(user *models.User) error {
	if user.ID() == "" {
		user.SetID(shared.GenerateID())
	}

	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query, user.ID(), user.Username, user.Email, user.FirstName, user.CreatedAt(), user.UpdatedAt())
	if isUniqueViolation(err) {
		return fmt.Errorf("username %q %w", user.Username, shared.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(id string) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by their unique username
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// UsernameExists reports whether username is taken
func (r *UserRepository) UsernameExists(username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// Update modifies an existing user in the database
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	user.SetUpdatedAt(now())

	result, err := r.db.Exec(
		`UPDATE users SET username = ?, email = ?, first_name = ?, updated_at = ? WHERE id = ?`,
		user.Username, user.Email, user.FirstName, user.UpdatedAt(), user.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectAffected(result, "user", user.ID())
}

// Delete removes a user and, through foreign keys, everything the user owns
func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result, "user", id)
}

// List retrieves all users matching the given criteria ("email", "username")
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	args := []any{}

	if email, ok := criteria["email"].(string); ok && email != "" {
		query += " AND email = ?"
		args = append(args, email)
	}
	if username, ok := criteria["username"].(string); ok && username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

func scanUser(s scanner) (*models.User, error) {
	var (
		id                 string
		user               models.User
		createdAt, updated time.Time
	)
	if err := s.Scan(&id, &user.Username, &user.Email, &user.FirstName, &createdAt, &updated); err != nil {
		return nil, err
	}
	user.SetID(id)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updated)
	return &user, nil
}

// SessionRepository stores login sessions keyed by their cookie token.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores s
func (r *SessionRepository) Create(s *models.Session) error {
	if s.Token == "" || s.UserID == "" {
		return fmt.Errorf("%w: session requires a token and user", shared.ErrInvalidInput)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (token, user_id, account_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.Token, s.UserID, nullString(s.AccountID), s.ExpiresAt.UTC(), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns the session for token when it exists and has not expired
func (r *SessionRepository) Get(token string) (*models.Session, error) {
	var (
		s         models.Session
		accountID sql.NullString
	)
	err := r.db.QueryRow(
		`SELECT token, user_id, account_id, expires_at, created_at FROM sessions WHERE token = ?`, token,
	).Scan(&s.Token, &s.UserID, &accountID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("session", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if s.Expired(now()) {
		return nil, fmt.Errorf("session expired: %w", shared.ErrNotAuthenticated)
	}
	s.AccountID = accountID.String
	return &s, nil
}

// Delete removes the session for token. Missing sessions are not an error.
func (r *SessionRepository) Delete(token string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser ends every session of a user
func (r *SessionRepository) DeleteForUser(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired before at and returns how many were removed
func (r *SessionRepository) PurgeExpired(at time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return result.RowsAffected()
}
