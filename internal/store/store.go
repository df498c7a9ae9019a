package store

import (
	"context"
	"errors"

	"secure.vault/internal/models"
)

var ErrNotFound = errors.New("object not found")

// Store persists objects keyed by id with secondary lookups by name, owner
// and token. Names are not unique.
type Store interface {
	// Save inserts or replaces the object with the same id.
	Save(ctx context.Context, obj *models.Object) error
	Get(ctx context.Context, id string) (*models.Object, error)
	FindByName(ctx context.Context, name string) ([]*models.Object, error)
	FindByToken(ctx context.Context, token string) (*models.Object, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]*models.Object, error)
	ListAll(ctx context.Context) ([]*models.Object, error)
	// Delete removes the object. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
