package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use. It is
// satisfied by pgxmock pools in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IdentityStore persists enrolled identities and the normalized samples
// they were enrolled from. Create and Update write the identity and its
// samples atomically; Update replaces the previous samples.
type IdentityStore interface {
	Create(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error
	Update(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error
	GetByID(ctx context.Context, id string) (*domain.EnrolledIdentity, error)
	List(ctx context.Context) ([]*domain.EnrolledIdentity, error)
	// ListSamples returns every stored sample keyed by identity id.
	ListSamples(ctx context.Context) (map[string][]imaging.NormalizedImage, error)
}
