package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// FriendRequestService drives the request lifecycle:
// pending -> accepted | rejected, both terminal and both deleting the
// record. There is no retained accepted/rejected row. At most one
// pending request may exist per (sender, recipient) pair; a duplicate
// send fails with ALREADY_EXISTS.
type FriendRequestService struct {
	requests      stores.RequestStore
	graph         *SocialGraphService
	notifications *NotificationService
	coordinator   *SyncCoordinator
}

func NewFriendRequestService(requests stores.RequestStore, graph *SocialGraphService, notifications *NotificationService, coordinator *SyncCoordinator) *FriendRequestService {
	return &FriendRequestService{
		requests:      requests,
		graph:         graph,
		notifications: notifications,
		coordinator:   coordinator,
	}
}

// Send queues a pending request at the recipient with a server-assigned
// timestamp, plus a fan-out notification. Only the sender may send as
// themself.
func (s *FriendRequestService) Send(ctx context.Context, caller, from, to models.ProfileID) (models.FriendRequest, error) {
	if caller == "" {
		return models.FriendRequest{}, errors.ErrUnauthenticated
	}
	if caller != from {
		return models.FriendRequest{}, errors.ErrUnauthorized
	}
	if to == "" || from == to {
		return models.FriendRequest{}, errors.ErrInvalidArgument
	}

	sender, err := s.graph.GetProfile(ctx, from)
	if err != nil {
		return models.FriendRequest{}, err
	}
	recipient, err := s.graph.GetProfile(ctx, to)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if recipient.HasFriend(from) {
		return models.FriendRequest{}, errors.ErrAlreadyExists
	}

	req := models.FriendRequest{
		ID:         uuid.New().String(),
		FromUserID: from,
		Timestamp:  time.Now().UTC(),
		Status:     models.RequestPending,
	}
	if err := s.requests.Create(ctx, to, req); err != nil {
		return models.FriendRequest{}, err
	}

	// Fan-out is best-effort; the pending request is the authoritative
	// ephemeral record.
	title := "New friend request"
	message := sender.FirstName + " " + sender.LastName + " wants to be trail mates"
	if _, err := s.notifications.SendSystem(ctx, to, models.NotificationFriendRequest, title, message, from, ""); err != nil {
		log.Printf("Failed to fan out friend request %s to %s: %v", req.ID, to, err)
	}
	return req, nil
}

// Accept resolves the request and establishes the friendship via the
// sync coordinator's cross-store sequence.
func (s *FriendRequestService) Accept(ctx context.Context, caller models.ProfileID, requestID string) (models.ProfileID, error) {
	return s.coordinator.AcceptFriendRequest(ctx, caller, requestID)
}

// Reject resolves the request without a graph mutation.
func (s *FriendRequestService) Reject(ctx context.Context, caller models.ProfileID, requestID string) error {
	return s.coordinator.RejectFriendRequest(ctx, caller, requestID)
}

// ListPending returns the caller's own pending queue.
func (s *FriendRequestService) ListPending(ctx context.Context, caller models.ProfileID) ([]models.FriendRequest, error) {
	if caller == "" {
		return nil, errors.ErrUnauthenticated
	}
	return s.requests.List(ctx, caller)
}
