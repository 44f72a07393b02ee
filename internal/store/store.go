// Package store owns the User and Application records and enforces the
// one-application-per-user rule: saving a second application for the same
// user overwrites the existing record in place.
package store

import (
	"context"

	"visa-tracker/internal/models"
)

// Store is the record store contract. Lookups report absence through the
// found flag; errors are reserved for the backend being unreachable.
type Store interface {
	// SaveApplication inserts the record, or overwrites the user's existing
	// one. The returned record carries the stored identity and timestamps.
	// Concurrent saves for the same user must not produce duplicates.
	SaveApplication(ctx context.Context, app *models.Application) (*models.Application, error)
	FindApplicationByUserID(ctx context.Context, userID string) (*models.Application, bool, error)
	// GetApplications returns every application. Insertion order where the
	// backend offers it; callers must not rely on ordering.
	GetApplications(ctx context.Context) ([]models.Application, error)

	SaveUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, bool, error)
	// FindUserByEmail is a case-sensitive exact match.
	FindUserByEmail(ctx context.Context, email string) (*models.User, bool, error)
}
