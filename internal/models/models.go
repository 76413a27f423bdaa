// package models defines the data model for the YouTube account linking service
package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/ytlink/internal/shared"
)

// Model defines the base interface for all persistent models.
// Implementations include User, YouTubeAccount, SavedVideo, UploadJob, etc.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Base carries the identity and timestamps shared by every persistent entity.
type Base struct {
	id        string
	createdAt time.Time
	updatedAt time.Time
}

func newBase() Base {
	now := time.Now().UTC()
	return Base{createdAt: now, updatedAt: now}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) SetID(id string)      { b.id = id }
func (b *Base) CreatedAt() time.Time { return b.createdAt }
func (b *Base) UpdatedAt() time.Time { return b.updatedAt }

func (b *Base) SetCreatedAt(t time.Time) { b.createdAt = t }
func (b *Base) SetUpdatedAt(t time.Time) { b.updatedAt = t }

// Touch bumps UpdatedAt to now.
func (b *Base) Touch() { b.updatedAt = time.Now().UTC() }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Page describes one page of a paginated listing.
type Page struct {
	Number  int
	Size    int
	Total   int
	Entries int
}

// NewPage clamps number into the valid range for total rows of size entries each.
func NewPage(number, size, total int) Page {
	p := Page{Number: number, Size: size, Total: total}
	if p.Size <= 0 {
		p.Size = 10
	}
	if last := p.Pages(); p.Number > last {
		p.Number = last
	}
	if p.Number < 1 {
		p.Number = 1
	}
	return p
}

// Pages is the page count, at least 1.
func (p Page) Pages() int {
	if p.Total <= 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Pages() }
func (p Page) Prev() int     { return p.Number - 1 }
func (p Page) Next() int     { return p.Number + 1 }
