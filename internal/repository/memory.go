package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// MemoryIdentityStore keeps identities in process memory. It is used when
// no database is configured and in tests.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*domain.EnrolledIdentity
	samples    map[string][]imaging.NormalizedImage
	now        func() time.Time
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: map[string]*domain.EnrolledIdentity{},
		samples:    map[string][]imaging.NormalizedImage{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryIdentityStore) Create(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error {
	if err := ctx.Err(); err != nil {
		return storageError("create identity", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity.ID]; ok {
		return domain.ErrIdentityExists
	}
	now := s.now()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	s.identities[identity.ID] = identity.Clone()
	s.samples[identity.ID] = append([]imaging.NormalizedImage(nil), samples...)
	return nil
}

func (s *MemoryIdentityStore) Update(ctx context.Context, identity *domain.EnrolledIdentity, samples []imaging.NormalizedImage) error {
	if err := ctx.Err(); err != nil {
		return storageError("update identity", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.identities[identity.ID]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.CreatedAt = existing.CreatedAt
	identity.UpdatedAt = s.now()
	s.identities[identity.ID] = identity.Clone()
	s.samples[identity.ID] = append([]imaging.NormalizedImage(nil), samples...)
	return nil
}

func (s *MemoryIdentityStore) GetByID(_ context.Context, id string) (*domain.EnrolledIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return identity.Clone(), nil
}

func (s *MemoryIdentityStore) List(_ context.Context) ([]*domain.EnrolledIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.EnrolledIdentity, 0, len(s.identities))
	for _, identity := range s.identities {
		out = append(out, identity.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryIdentityStore) ListSamples(_ context.Context) (map[string][]imaging.NormalizedImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]imaging.NormalizedImage, len(s.samples))
	for id, imgs := range s.samples {
		out[id] = append([]imaging.NormalizedImage(nil), imgs...)
	}
	return out, nil
}

var _ IdentityStore = (*MemoryIdentityStore)(nil)
