package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// DescriptorRepository stores reference descriptors in PostgreSQL using
// the pgvector column type.
type DescriptorRepository struct {
	pool PgxPool
}

func NewDescriptorRepository(pool PgxPool) *DescriptorRepository {
	return &DescriptorRepository{pool: pool}
}

// Save inserts the reference or replaces the existing one for the user.
func (r *DescriptorRepository) Save(ctx context.Context, ref *domain.FaceReference) error {
	query := `
		INSERT INTO face_references (user_id, descriptor, sample_count, quality_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			sample_count = EXCLUDED.sample_count,
			quality_score = EXCLUDED.quality_score,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	if len(ref.Descriptor) == 0 {
		return fmt.Errorf("save descriptor: empty descriptor for user %s", ref.UserID)
	}

	vec := toVector(ref.Descriptor)
	err := r.pool.QueryRow(ctx, query,
		ref.UserID,
		&vec,
		ref.SampleCount,
		ref.QualityScore,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if isUndefinedTable(err) {
			return fmt.Errorf("save descriptor: schema not migrated: %w", err)
		}
		return fmt.Errorf("save descriptor: %w", err)
	}

	return nil
}

func (r *DescriptorRepository) Load(ctx context.Context, userID string) (*domain.FaceReference, error) {
	query := `
		SELECT user_id, descriptor, sample_count, quality_score, created_at, updated_at
		FROM face_references
		WHERE user_id = $1
	`

	var ref domain.FaceReference
	var descriptor *pgvector.Vector

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&ref.UserID,
		&descriptor,
		&ref.SampleCount,
		&ref.QualityScore,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoReferenceDescriptor
	}
	if err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("load descriptor: schema not migrated: %w", err)
		}
		return nil, fmt.Errorf("load descriptor: %w", err)
	}

	if descriptor == nil || len(descriptor.Slice()) == 0 {
		return nil, domain.ErrNoReferenceDescriptor
	}
	ref.Descriptor = fromVector(*descriptor)

	return &ref, nil
}

func (r *DescriptorRepository) Delete(ctx context.Context, userID string) error {
	query := `
		DELETE FROM face_references
		WHERE user_id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNoReferenceDescriptor
	}

	return nil
}

func (r *DescriptorRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func toVector(v []float64) pgvector.Vector {
	floats := make([]float32, len(v))
	for i, f := range v {
		floats[i] = float32(f)
	}
	return pgvector.NewVector(floats)
}

func fromVector(v pgvector.Vector) []float64 {
	out := make([]float64, len(v.Slice()))
	for i, f := range v.Slice() {
		out[i] = float64(f)
	}
	return out
}

var _ DescriptorStore = (*DescriptorRepository)(nil)
