package services

import (
	"context"
	"log"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// SyncCoordinator owns every operation that touches both the durable and
// the ephemeral store. The ordering rule throughout: the durable,
// authoritative mutation commits before any ephemeral cleanup or
// fan-out. A failed durable mutation aborts with no ephemeral side
// effects; a failed cleanup after a successful durable mutation is
// logged and the operation still reports success. A stale notification
// is a nuisance; an inconsistent friend graph is a correctness bug.
type SyncCoordinator struct {
	graph         *SocialGraphService
	requests      stores.RequestStore
	notifications *NotificationService
	notifStore    stores.NotificationStore
}

func NewSyncCoordinator(graph *SocialGraphService, requests stores.RequestStore, notifications *NotificationService, notifStore stores.NotificationStore) *SyncCoordinator {
	return &SyncCoordinator{
		graph:         graph,
		requests:      requests,
		notifications: notifications,
		notifStore:    notifStore,
	}
}

// AcceptFriendRequest resolves a pending request in the caller's queue:
// claim the record (exactly one concurrent resolver wins; the loser gets
// NOT_FOUND, an expected race the client should swallow), commit the
// graph mutation, then clean up the ephemeral records best-effort.
func (c *SyncCoordinator) AcceptFriendRequest(ctx context.Context, caller models.ProfileID, requestID string) (models.ProfileID, error) {
	if caller == "" {
		return "", errors.ErrUnauthenticated
	}
	if requestID == "" {
		return "", errors.ErrInvalidArgument
	}

	from, err := c.requests.Claim(ctx, caller, requestID, models.RequestAccepted)
	if err != nil {
		return "", err
	}
	if from == caller {
		// A request cannot target its own sender; scrap the bogus record.
		c.cleanupRequest(ctx, caller, requestID, from)
		return "", errors.ErrInvalidArgument
	}

	if err := c.graph.AddFriendBidirectional(ctx, from, caller); err != nil {
		// Durable half failed: put the request back so resolution can be
		// retried, and report the failure.
		if relErr := c.requests.Release(ctx, caller, requestID); relErr != nil {
			log.Printf("Failed to release claimed request %s for %s: %v", requestID, caller, relErr)
		}
		return "", err
	}

	// The friendship stands regardless of what happens below.
	c.cleanupRequest(ctx, caller, requestID, from)

	if _, err := c.notifications.SendSystem(ctx, from, models.NotificationFriendAccepted,
		"Friend request accepted", "You are now trail mates!", caller, ""); err != nil {
		log.Printf("Failed to notify %s of accepted request: %v", from, err)
	}
	return from, nil
}

// RejectFriendRequest resolves a pending request without touching the
// graph. The loser of a concurrent accept/reject gets NOT_FOUND.
func (c *SyncCoordinator) RejectFriendRequest(ctx context.Context, caller models.ProfileID, requestID string) error {
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if requestID == "" {
		return errors.ErrInvalidArgument
	}
	from, err := c.requests.Claim(ctx, caller, requestID, models.RequestRejected)
	if err != nil {
		return err
	}
	c.cleanupRequest(ctx, caller, requestID, from)
	return nil
}

// RemoveFriend removes the friendship durably. No ephemeral state is
// tied to an established friendship, so there is nothing to clean up.
func (c *SyncCoordinator) RemoveFriend(ctx context.Context, caller, friendID models.ProfileID) error {
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if friendID == "" || caller == friendID {
		return errors.ErrInvalidArgument
	}
	return c.graph.RemoveFriendBidirectional(ctx, caller, friendID)
}

// cleanupRequest deletes the resolved request and its fan-out
// notification. Best-effort: failures are logged for background
// reconciliation, never surfaced.
func (c *SyncCoordinator) cleanupRequest(ctx context.Context, to models.ProfileID, requestID string, from models.ProfileID) {
	if err := c.requests.Delete(ctx, to, requestID, from); err != nil {
		log.Printf("Failed to delete resolved request %s for %s (stale record left for GC): %v", requestID, to, err)
	}
	recs, err := c.notifStore.List(ctx, to)
	if err != nil {
		log.Printf("Failed to list notifications for %s during request cleanup: %v", to, err)
		return
	}
	for _, rec := range recs {
		if rec.Type == models.NotificationFriendRequest && rec.FromUserID == from {
			if err := c.notifStore.Delete(ctx, to, rec.ID); err != nil {
				log.Printf("Failed to delete notification %s for %s: %v", rec.ID, to, err)
			}
		}
	}
}
