package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/ytlink/internal/models"
	"github.com/desertthunder/ytlink/internal/shared"
)

func TestUserRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)

			if err := repo.Create(models.NewUser("", "a@example.com", "")); !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected validation error for empty username, got %v", err)
			}
		})

		t.Run("DuplicateUsername", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)
			createUser(t, db, "alice")

			err := repo.Create(models.NewUser("alice", "other@example.com", ""))
			if !errors.Is(err, shared.ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)

			if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := repo.GetByUsername("nobody"); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)
			user := models.NewUser("ghost", "", "")
			user.SetID("nonexistent-id")

			if err := repo.Update(user); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			if err := NewUserRepository(db).Delete("nonexistent-id"); !errors.Is(err, shared.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		db.Close()

		if _, err := repo.List(nil); err == nil {
			t.Fatal("expected error listing from a closed database")
		}
		if err := repo.Create(models.NewUser("alice", "", "")); err == nil {
			t.Fatal("expected error creating in a closed database")
		}
	})
}

func TestAccountRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("UnknownUser", func(t *testing.T) {
			db := setupTestDB(t)
			account := models.NewYouTubeAccount("missing-user", "UC1", "c")

			if err := NewAccountRepository(db).Create(account); err == nil {
				t.Fatal("expected foreign key error for unknown user")
			}
		})

		t.Run("SecondAccountForUser", func(t *testing.T) {
			db := setupTestDB(t)
			user := createUser(t, db, "alice")
			createAccount(t, db, user, "UC1")

			err := NewAccountRepository(db).Create(models.NewYouTubeAccount(user.ID(), "UC2", "c"))
			if !errors.Is(err, shared.ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}
		})
	})

	t.Run("Lookups", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAccountRepository(db)

		if _, err := repo.GetByUser("nobody"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetByChannel("UCnone"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateToken NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		account := models.NewYouTubeAccount("u", "UC1", "c")
		account.SetID("missing")

		if err := NewAccountRepository(db).UpdateToken(account); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUploadRepositoryErrors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUploadRepository(db)

	t.Run("UnknownAccount", func(t *testing.T) {
		if err := repo.Create(models.NewUploadJob("missing", "Clip")); err == nil {
			t.Fatal("expected foreign key error")
		}
	})

	t.Run("BadStatus", func(t *testing.T) {
		account := createAccount(t, db, createUser(t, db, "alice"), "UC1")
		job := models.NewUploadJob(account.ID(), "Clip")
		if err := repo.Create(job); err != nil {
			t.Fatal(err)
		}
		job.Status = "exploded"
		if err := repo.Update(job); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}
