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

// PhoneNumberProvider resolves the phone number bound to an authenticated
// session. The number must come from the auth layer, never from a
// client-supplied field, or a hostile client could migrate someone
// else's legacy profile onto its own session.
type PhoneNumberProvider interface {
	PhoneNumber(ctx context.Context, session models.SessionID) (string, error)
}

const (
	// EnsureActionExisting means a profile keyed by the session id was
	// already in place.
	EnsureActionExisting = "existing"
	// EnsureActionMigrated means a legacy profile was copied under the
	// session id and the old record tombstoned.
	EnsureActionMigrated = "migrated"
)

// EnsureResult reports what EnsureProfile did.
type EnsureResult struct {
	Ensured         bool             `json:"ensured"`
	Action          string           `json:"action"`
	ProfileID       models.ProfileID `json:"uid"`
	LegacyProfileID models.ProfileID `json:"legacy_user_id,omitempty"`
}

// IdentityService reconciles the session identifier space with the
// profile-record identifier space. It is the only place a SessionID
// becomes a storage-key ProfileID.
type IdentityService struct {
	profiles stores.ProfileStore
	hasher   *PhoneHasher
	auth     PhoneNumberProvider
}

func NewIdentityService(profiles stores.ProfileStore, hasher *PhoneHasher, auth PhoneNumberProvider) *IdentityService {
	return &IdentityService{profiles: profiles, hasher: hasher, auth: auth}
}

// EnsureProfile guarantees a profile keyed by the session identifier
// exists, migrating a legacy record found via the session's phone hash
// when necessary. Runs once per session start, before anything else
// touches profile state. The lookup+write+tombstone sequence executes in
// a single store transaction, so concurrent restores of the same account
// from two devices cannot both migrate.
func (s *IdentityService) EnsureProfile(ctx context.Context, session models.SessionID) (EnsureResult, error) {
	if session == "" {
		return EnsureResult{}, errors.ErrUnauthenticated
	}
	profileID := models.ProfileID(session)

	// Fast path: the profile is already keyed correctly.
	var existing models.Profile
	err := retry.Do(ctx, 3, 200*time.Millisecond, func(ctx context.Context) error {
		var err error
		existing, err = s.profiles.Get(ctx, profileID)
		if errors.IsNotFound(err) {
			// Definitive answer, not a transport failure.
			return nil
		}
		return err
	})
	if err != nil {
		return EnsureResult{}, err
	}
	if existing.ID == profileID {
		return EnsureResult{Ensured: true, Action: EnsureActionExisting, ProfileID: profileID}, nil
	}

	phone, err := s.auth.PhoneNumber(ctx, session)
	if err != nil {
		return EnsureResult{}, err
	}
	if phone == "" {
		return EnsureResult{}, errors.ErrFailedPrecondition
	}
	hash := s.hasher.Hash(phone)

	result := EnsureResult{Ensured: true, ProfileID: profileID}
	err = s.profiles.RunTransaction(ctx, func(tx stores.ProfileTx) error {
		// Re-check under the transaction: another device may have
		// finished the migration between the fast path and here.
		if _, err := tx.Get(profileID); err == nil {
			result.Action = EnsureActionExisting
			return nil
		} else if !errors.IsNotFound(err) {
			return err
		}

		legacy, err := tx.FindByHashedPhone(hash)
		if err != nil {
			// Includes NOT_FOUND: no legacy record either, so there is
			// nothing to ensure.
			return err
		}

		migrated := legacy
		migrated.ID = profileID
		migrated.PhoneNumber = CanonicalizePhoneNumber(phone)
		migrated.HashedPhoneNumber = hash
		migrated.MigratedToUserID = ""
		if err := tx.Put(migrated); err != nil {
			return err
		}

		// Tombstone, don't delete: clear the hash so the legacy record
		// can never match a discovery query again, and leave a pointer
		// for anything still holding the old id.
		legacy.HashedPhoneNumber = ""
		legacy.MigratedToUserID = profileID
		if err := tx.Put(legacy); err != nil {
			return err
		}

		result.Action = EnsureActionMigrated
		result.LegacyProfileID = legacy.ID
		return nil
	})
	if err != nil {
		return EnsureResult{}, err
	}
	if result.Action == EnsureActionMigrated {
		log.Printf("Migrated legacy profile %s to %s", result.LegacyProfileID, profileID)
	}
	return result, nil
}
