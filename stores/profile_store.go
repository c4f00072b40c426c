// Package stores holds the capability interfaces for the durable and
// ephemeral stores, and their MongoDB / Redis / in-memory
// implementations. Services take these interfaces in their constructors
// so tests can substitute fakes without a process-wide singleton.
package stores

import (
	"context"
	"strings"
	"sync"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// ProfileTx is the view of the profile collection inside a transaction.
// Reads see committed state plus the transaction's own writes; nothing is
// visible to other callers until the transaction commits.
type ProfileTx interface {
	Get(id models.ProfileID) (models.Profile, error)
	FindByHashedPhone(hash string) (models.Profile, error)
	Put(p models.Profile) error
}

// ProfileStore is the durable store for profiles and the social graph.
type ProfileStore interface {
	Get(ctx context.Context, id models.ProfileID) (models.Profile, error)
	Create(ctx context.Context, p models.Profile) error
	Put(ctx context.Context, p models.Profile) error
	FindByHashedPhone(ctx context.Context, hash string) (models.Profile, error)
	// FindByHashedPhones matches any of the given hashes, batching the
	// underlying queries in chunks of at most ten.
	FindByHashedPhones(ctx context.Context, hashes []string) ([]models.Profile, error)
	// FindMissingPhoneHash returns profiles that have a phone number but
	// no derived hash (legacy records awaiting backfill).
	FindMissingPhoneHash(ctx context.Context) ([]models.Profile, error)
	IsUsernameTaken(ctx context.Context, username string, excluding models.ProfileID) (bool, error)
	// RunTransaction executes fn atomically. If fn returns an error the
	// transaction's writes are discarded.
	RunTransaction(ctx context.Context, fn func(tx ProfileTx) error) error
}

// hashQueryChunkSize caps the number of hashes per equality-filter query.
const hashQueryChunkSize = 10

// hashChunks drops empty hashes and splits the rest into query batches
// of at most hashQueryChunkSize, preserving order. Every ProfileStore
// implementation routes FindByHashedPhones through this, so the batching
// contract holds regardless of backend.
func hashChunks(hashes []string) [][]string {
	filtered := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h != "" {
			filtered = append(filtered, h)
		}
	}
	var chunks [][]string
	for start := 0; start < len(filtered); start += hashQueryChunkSize {
		end := start + hashQueryChunkSize
		if end > len(filtered) {
			end = len(filtered)
		}
		chunks = append(chunks, filtered[start:end])
	}
	return chunks
}

// MemoryProfileStore is a mutex-guarded in-memory ProfileStore. It backs
// the tests and local development without a Mongo instance.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[models.ProfileID]models.Profile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[models.ProfileID]models.Profile)}
}

func (s *MemoryProfileStore) Get(ctx context.Context, id models.ProfileID) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return models.Profile{}, errors.ErrNotFound
	}
	return p, nil
}

func (s *MemoryProfileStore) Create(ctx context.Context, p models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return errors.ErrAlreadyExists
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryProfileStore) Put(ctx context.Context, p models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryProfileStore) FindByHashedPhone(ctx context.Context, hash string) (models.Profile, error) {
	if hash == "" {
		return models.Profile{}, errors.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.HashedPhoneNumber == hash {
			return p, nil
		}
	}
	return models.Profile{}, errors.ErrNotFound
}

func (s *MemoryProfileStore) FindByHashedPhones(ctx context.Context, hashes []string) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Profile
	for _, chunk := range hashChunks(hashes) {
		want := make(map[string]struct{}, len(chunk))
		for _, h := range chunk {
			want[h] = struct{}{}
		}
		for _, p := range s.profiles {
			if _, ok := want[p.HashedPhoneNumber]; ok {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *MemoryProfileStore) FindMissingPhoneHash(ctx context.Context) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Profile
	for _, p := range s.profiles {
		if p.PhoneNumber != "" && p.HashedPhoneNumber == "" && p.MigratedToUserID == "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryProfileStore) IsUsernameTaken(ctx context.Context, username string, excluding models.ProfileID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, p := range s.profiles {
		if id != excluding && strings.EqualFold(p.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

// memoryProfileTx stages writes so an aborted transaction leaves the base
// map untouched.
type memoryProfileTx struct {
	base    map[models.ProfileID]models.Profile
	pending map[models.ProfileID]models.Profile
}

func (tx *memoryProfileTx) Get(id models.ProfileID) (models.Profile, error) {
	if p, ok := tx.pending[id]; ok {
		return p, nil
	}
	if p, ok := tx.base[id]; ok {
		return p, nil
	}
	return models.Profile{}, errors.ErrNotFound
}

func (tx *memoryProfileTx) FindByHashedPhone(hash string) (models.Profile, error) {
	if hash == "" {
		return models.Profile{}, errors.ErrNotFound
	}
	for _, p := range tx.pending {
		if p.HashedPhoneNumber == hash {
			return p, nil
		}
	}
	for id, p := range tx.base {
		if _, staged := tx.pending[id]; staged {
			continue
		}
		if p.HashedPhoneNumber == hash {
			return p, nil
		}
	}
	return models.Profile{}, errors.ErrNotFound
}

func (tx *memoryProfileTx) Put(p models.Profile) error {
	tx.pending[p.ID] = p
	return nil
}

func (s *MemoryProfileStore) RunTransaction(ctx context.Context, fn func(tx ProfileTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryProfileTx{
		base:    s.profiles,
		pending: make(map[models.ProfileID]models.Profile),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.pending {
		s.profiles[id] = p
	}
	return nil
}
