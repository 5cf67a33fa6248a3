package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// ProfileDimension is the width of the profile_vector column.
const ProfileDimension = 128

type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) Create(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error {
	query := `
		INSERT INTO identities (id, display_name, profile_vector, sample_count, active_matchers, degraded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageError("begin create identity", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, query,
		identity.ID,
		identity.DisplayName,
		toPgVector(identity.ProfileVector),
		identity.SampleCount,
		identity.ActiveMatchers,
		identity.Degraded,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdentityExists
		}
		return storageError("create identity", err)
	}

	if err := insertSamples(ctx, tx, identity.ID, samples); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("commit create identity", err)
	}
	return nil
}

func (r *IdentityRepository) Update(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error {
	query := `
		UPDATE identities
		SET display_name = $2, profile_vector = $3, sample_count = $4, active_matchers = $5, degraded = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageError("begin update identity", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, query,
		identity.ID,
		identity.DisplayName,
		toPgVector(identity.ProfileVector),
		identity.SampleCount,
		identity.ActiveMatchers,
		identity.Degraded,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrIdentityNotFound
	}
	if err != nil {
		return storageError("update identity", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM enrollment_samples WHERE identity_id = $1`, identity.ID); err != nil {
		return storageError("delete enrollment samples", err)
	}
	if err := insertSamples(ctx, tx, identity.ID, samples); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("commit update identity", err)
	}
	return nil
}

func insertSamples(ctx context.Context, tx pgx.Tx, identityID string, samples []imaging.NormalizedImage) error {
	query := `
		INSERT INTO enrollment_samples (identity_id, position, size, pixels)
		VALUES ($1, $2, $3, $4)
	`
	for i, s := range samples {
		if _, err := tx.Exec(ctx, query, identityID, i, s.Size(), encodePlane(s)); err != nil {
			return storageError(fmt.Sprintf("insert enrollment sample %d", i), err)
		}
	}
	return nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.EnrolledIdentity, error) {
	query := `
		SELECT id, display_name, profile_vector, sample_count, active_matchers, degraded, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, storageError("get identity by id", err)
	}
	return identity, nil
}

func (r *IdentityRepository) List(ctx context.Context) ([]*domain.EnrolledIdentity, error) {
	query := `
		SELECT id, display_name, profile_vector, sample_count, active_matchers, degraded, created_at, updated_at
		FROM identities
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storageError("list identities", err)
	}
	defer rows.Close()

	var identities []*domain.EnrolledIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, storageError("scan identity", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate identities", err)
	}
	return identities, nil
}

func (r *IdentityRepository) ListSamples(ctx context.Context) (map[string][]imaging.NormalizedImage, error) {
	query := `
		SELECT identity_id, size, pixels
		FROM enrollment_samples
		ORDER BY identity_id, position
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storageError("list enrollment samples", err)
	}
	defer rows.Close()

	samples := map[string][]imaging.NormalizedImage{}
	for rows.Next() {
		var (
			identityID string
			size       int
			pixels     []byte
		)
		if err := rows.Scan(&identityID, &size, &pixels); err != nil {
			return nil, storageError("scan enrollment sample", err)
		}
		img, err := decodePlane(size, pixels)
		if err != nil {
			return nil, storageError("decode enrollment sample", err)
		}
		samples[identityID] = append(samples[identityID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate enrollment samples", err)
	}
	return samples, nil
}

func scanIdentity(row pgx.Row) (*domain.EnrolledIdentity, error) {
	var (
		identity domain.EnrolledIdentity
		profile  *pgvector.Vector
	)
	err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&profile,
		&identity.SampleCount,
		&identity.ActiveMatchers,
		&identity.Degraded,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.ProfileVector = fromPgVector(profile)
	return &identity, nil
}

func storageError(op string, err error) error {
	return domain.ErrStorage.WithError(fmt.Errorf("%s: %w", op, err))
}

var _ IdentityStore = (*IdentityRepository)(nil)
