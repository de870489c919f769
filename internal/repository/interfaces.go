package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use, so tests
// can substitute pgxmock.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// DescriptorStore persists one reference descriptor per user.
//
// Load and Delete return domain.ErrNoReferenceDescriptor when the user
// has no reference. Any other error means the store itself failed.
type DescriptorStore interface {
	Save(ctx context.Context, ref *domain.FaceReference) error
	Load(ctx context.Context, userID string) (*domain.FaceReference, error)
	Delete(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}
