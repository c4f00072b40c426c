package services

import (
	"context"
	"log"
	"time"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
	"github.com/jakekinchen/TrailMates-sub002/utils/retry"
)

// DiscoveredUser is the public projection returned by contact discovery.
type DiscoveredUser struct {
	ID                  models.ProfileID `json:"id"`
	FirstName           string           `json:"first_name"`
	LastName            string           `json:"last_name"`
	Username            string           `json:"username"`
	PhoneNumber         string           `json:"phone_number"`
	ProfileImageURL     string           `json:"profile_image_url,omitempty"`
	ProfileThumbnailURL string           `json:"profile_thumbnail_url,omitempty"`
}

// SocialGraphService owns the durable friend graph and profile queries.
// Both sides of a friendship mutate inside one store transaction; the
// bidirectional invariant (A has B iff B has A) must hold after any
// sequence of operations.
type SocialGraphService struct {
	profiles stores.ProfileStore
	hasher   *PhoneHasher
}

func NewSocialGraphService(profiles stores.ProfileStore, hasher *PhoneHasher) *SocialGraphService {
	return &SocialGraphService{profiles: profiles, hasher: hasher}
}

// GetProfile fetches a profile with bounded retry; profile reads are
// network-fallible and safe to repeat.
func (s *SocialGraphService) GetProfile(ctx context.Context, id models.ProfileID) (models.Profile, error) {
	var p models.Profile
	err := retry.Do(ctx, 3, 200*time.Millisecond, func(ctx context.Context) error {
		var err error
		p, err = s.profiles.Get(ctx, id)
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return models.Profile{}, err
	}
	if p.ID == "" {
		return models.Profile{}, errors.ErrNotFound
	}
	return p, nil
}

// AddFriendBidirectional makes a and b friends of each other. Idempotent:
// an already-present friendship is a no-op, not an error. Aborts with
// NOT_FOUND and writes nothing if either profile is missing.
func (s *SocialGraphService) AddFriendBidirectional(ctx context.Context, a, b models.ProfileID) error {
	if a == b {
		return errors.ErrInvalidArgument
	}
	return s.profiles.RunTransaction(ctx, func(tx stores.ProfileTx) error {
		pa, err := tx.Get(a)
		if err != nil {
			return err
		}
		pb, err := tx.Get(b)
		if err != nil {
			return err
		}
		if pa.HasFriend(b) && pb.HasFriend(a) {
			return nil
		}
		if !pa.HasFriend(b) {
			pa.Friends = append(pa.Friends, string(b))
		}
		if !pb.HasFriend(a) {
			pb.Friends = append(pb.Friends, string(a))
		}
		if err := tx.Put(pa); err != nil {
			return err
		}
		return tx.Put(pb)
	})
}

// RemoveFriendBidirectional removes each from the other's friend set.
// Removing a non-friend pair is a no-op.
func (s *SocialGraphService) RemoveFriendBidirectional(ctx context.Context, a, b models.ProfileID) error {
	if a == b {
		return errors.ErrInvalidArgument
	}
	return s.profiles.RunTransaction(ctx, func(tx stores.ProfileTx) error {
		pa, err := tx.Get(a)
		if err != nil {
			return err
		}
		pb, err := tx.Get(b)
		if err != nil {
			return err
		}
		if !pa.HasFriend(b) && !pb.HasFriend(a) {
			return nil
		}
		pa.Friends = removeID(pa.Friends, b)
		pb.Friends = removeID(pb.Friends, a)
		if err := tx.Put(pa); err != nil {
			return err
		}
		return tx.Put(pb)
	})
}

func removeID(ids []string, id models.ProfileID) []string {
	out := ids[:0]
	for _, f := range ids {
		if f != string(id) {
			out = append(out, f)
		}
	}
	return out
}

// IsUsernameTaken checks the username case-insensitively, excluding the
// given profile so a user can keep their own name during an update.
func (s *SocialGraphService) IsUsernameTaken(ctx context.Context, username string, excluding models.ProfileID) (bool, error) {
	if username == "" {
		return false, errors.ErrInvalidArgument
	}
	var taken bool
	err := retry.Do(ctx, 3, 200*time.Millisecond, func(ctx context.Context) error {
		var err error
		taken, err = s.profiles.IsUsernameTaken(ctx, username, excluding)
		return err
	})
	return taken, err
}

// FindUsersByHashedPhones resolves contact-discovery hashes to public
// profiles. Input hashes are deduplicated and batched in chunks of at
// most ten per query; each matching profile appears at most once, in no
// guaranteed order.
func (s *SocialGraphService) FindUsersByHashedPhones(ctx context.Context, hashes []string) ([]DiscoveredUser, error) {
	seen := make(map[string]struct{}, len(hashes))
	deduped := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		deduped = append(deduped, h)
	}
	if len(deduped) == 0 {
		return nil, nil
	}

	profiles, err := s.profiles.FindByHashedPhones(ctx, deduped)
	if err != nil {
		return nil, err
	}

	byID := make(map[models.ProfileID]struct{}, len(profiles))
	out := make([]DiscoveredUser, 0, len(profiles))
	for _, p := range profiles {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		byID[p.ID] = struct{}{}
		out = append(out, DiscoveredUser{
			ID:                  p.ID,
			FirstName:           p.FirstName,
			LastName:            p.LastName,
			Username:            p.Username,
			PhoneNumber:         p.PhoneNumber,
			ProfileImageURL:     p.ProfileImageURL,
			ProfileThumbnailURL: p.ProfileThumbnailURL,
		})
	}
	return out, nil
}

// UserExistsByHashedPhone is the unauthenticated pre-signup check.
func (s *SocialGraphService) UserExistsByHashedPhone(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, errors.ErrInvalidArgument
	}
	var exists bool
	err := retry.Do(ctx, 3, 200*time.Millisecond, func(ctx context.Context) error {
		_, err := s.profiles.FindByHashedPhone(ctx, hash)
		if errors.IsNotFound(err) {
			exists = false
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// MigratePhoneNumbers backfills the derived phone hash for legacy
// profiles that predate hashed discovery. Profiles that already carry a
// hash are skipped by the query itself. Admin-only; the handler enforces
// the admin claim.
func (s *SocialGraphService) MigratePhoneNumbers(ctx context.Context) (int, error) {
	missing, err := s.profiles.FindMissingPhoneHash(ctx)
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, p := range missing {
		p.HashedPhoneNumber = s.hasher.Hash(p.PhoneNumber)
		if err := s.profiles.Put(ctx, p); err != nil {
			log.Printf("Failed to backfill phone hash for %s: %v", p.ID, err)
			continue
		}
		migrated++
	}
	return migrated, nil
}
