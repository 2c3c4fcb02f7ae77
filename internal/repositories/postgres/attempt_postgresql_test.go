package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
)

func newAttemptTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Attempt{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUpdateVersionedPersistsSubmission(t *testing.T) {
	db := newAttemptTestDB(t)
	repo := NewAttemptPostgreSQL(db, nil)
	ctx := context.Background()

	now := time.Now()
	attempt := &models.Attempt{
		TestID:        1,
		StudentID:     "s-1",
		AttemptNumber: 1,
		Status:        models.AttemptInProgress,
		StartedAt:     &now,
		Version:       1,
	}
	if err := repo.Create(ctx, nil, attempt); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	submitted := now.Add(10 * time.Minute)
	attempt.Status = models.AttemptSubmitted
	attempt.SubmittedAt = &submitted
	attempt.TimeSpent = 600
	if err := repo.UpdateVersioned(ctx, nil, attempt); err != nil {
		t.Fatalf("UpdateVersioned() error = %v", err)
	}

	got, err := repo.GetByID(ctx, nil, attempt.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.AttemptSubmitted {
		t.Errorf("status = %s, want submitted", got.Status)
	}
	if got.SubmittedAt == nil {
		t.Error("submitted_at was not persisted")
	}
	if got.TimeSpent != 600 {
		t.Errorf("time_spent = %d, want 600", got.TimeSpent)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}

func TestUpdateVersionedStaleWriterLoses(t *testing.T) {
	db := newAttemptTestDB(t)
	repo := NewAttemptPostgreSQL(db, nil)
	ctx := context.Background()

	now := time.Now()
	attempt := &models.Attempt{
		TestID:    1,
		StudentID: "s-1",
		Status:    models.AttemptSubmitted,
		StartedAt: &now,
		Version:   1,
	}
	if err := repo.Create(ctx, nil, attempt); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first := *attempt
	if err := repo.UpdateVersioned(ctx, nil, &first); err != nil {
		t.Fatalf("UpdateVersioned() error = %v", err)
	}

	// A writer holding the old version must not overwrite the first one
	stale := *attempt
	stale.TimeSpent = 1
	err := repo.UpdateVersioned(ctx, nil, &stale)
	if !errors.Is(err, repositories.ErrStaleVersion) {
		t.Fatalf("UpdateVersioned() error = %v, want ErrStaleVersion", err)
	}

	missing := models.Attempt{ID: 999, Version: 1}
	if err := repo.UpdateVersioned(ctx, nil, &missing); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("UpdateVersioned() error = %v, want ErrRecordNotFound", err)
	}
}
