package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// syncFixture wires the full cross-store stack: an in-memory durable
// store plus real Redis-backed ephemeral stores against miniredis.
type syncFixture struct {
	profiles      *stores.MemoryProfileStore
	graph         *SocialGraphService
	requests      stores.RequestStore
	notifStore    stores.NotificationStore
	notifications *NotificationService
	friendReqs    *FriendRequestService
}

func newSyncFixture(t *testing.T, ids ...models.ProfileID) *syncFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	profiles := stores.NewMemoryProfileStore()
	for _, id := range ids {
		err := profiles.Create(context.Background(), models.Profile{
			ID:        id,
			FirstName: "User",
			LastName:  string(id),
			Friends:   []string{},
		})
		if err != nil {
			t.Fatalf("seed profile %s: %v", id, err)
		}
	}

	graph := NewSocialGraphService(profiles, NewPhoneHasher(""))
	requests := stores.NewRedisRequestStore(client)
	notifStore := stores.NewRedisNotificationStore(client)
	notifications := NewNotificationService(notifStore, profiles)
	coordinator := NewSyncCoordinator(graph, requests, notifications, notifStore)
	return &syncFixture{
		profiles:      profiles,
		graph:         graph,
		requests:      requests,
		notifStore:    notifStore,
		notifications: notifications,
		friendReqs:    NewFriendRequestService(requests, graph, notifications, coordinator),
	}
}

func TestFriendRequestLifecycleAccept(t *testing.T) {
	f := newSyncFixture(t, "alice", "bob")
	ctx := context.Background()

	req, err := f.friendReqs.Send(ctx, "alice", "alice", "bob")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Pending request and fan-out notification both visible at bob.
	pending, err := f.friendReqs.ListPending(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("expected bob's queue to hold the request, got %+v", pending)
	}
	notifs, err := f.notifStore.List(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(notifs) != 1 || notifs[0].Type != models.NotificationFriendRequest || notifs[0].FromUserID != "alice" {
		t.Fatalf("expected friend-request fan-out, got %+v", notifs)
	}

	friendID, err := f.friendReqs.Accept(ctx, "bob", req.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if friendID != "alice" {
		t.Errorf("Accept returned %q, want alice", friendID)
	}

	// Friendship is symmetric.
	alice, _ := f.profiles.Get(ctx, "alice")
	bob, _ := f.profiles.Get(ctx, "bob")
	if !alice.HasFriend("bob") || !bob.HasFriend("alice") {
		t.Error("accept should establish the friendship on both sides")
	}

	// Ephemeral records are gone: request deleted, fan-out notification
	// cleaned up, acceptance notification delivered to alice.
	if pending, _ := f.friendReqs.ListPending(ctx, "bob"); len(pending) != 0 {
		t.Errorf("resolved request still listed: %+v", pending)
	}
	notifs, _ = f.notifStore.List(ctx, "bob")
	if len(notifs) != 0 {
		t.Errorf("fan-out notification should be cleaned up, got %+v", notifs)
	}
	aliceNotifs, _ := f.notifStore.List(ctx, "alice")
	if len(aliceNotifs) != 1 || aliceNotifs[0].Type != models.NotificationFriendAccepted {
		t.Errorf("expected acceptance notification at alice, got %+v", aliceNotifs)
	}

	// The race loser (a second resolution attempt) gets NOT_FOUND.
	if _, err := f.friendReqs.Accept(ctx, "bob", req.ID); !errors.IsNotFound(err) {
		t.Errorf("second accept should be NOT_FOUND, got %v", err)
	}
}

func TestFriendRequestLifecycleReject(t *testing.T) {
	f := newSyncFixture(t, "alice", "bob")
	ctx := context.Background()

	req, err := f.friendReqs.Send(ctx, "alice", "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.friendReqs.Reject(ctx, "bob", req.ID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	// No graph mutation, no retained record, fan-out cleaned up.
	bob, _ := f.profiles.Get(ctx, "bob")
	if bob.HasFriend("alice") {
		t.Error("reject must not touch the friend graph")
	}
	if pending, _ := f.friendReqs.ListPending(ctx, "bob"); len(pending) != 0 {
		t.Errorf("rejected request still listed: %+v", pending)
	}
	if notifs, _ := f.notifStore.List(ctx, "bob"); len(notifs) != 0 {
		t.Errorf("fan-out notification should be cleaned up, got %+v", notifs)
	}

	// Rejection sends nothing back to the sender, and the pair may
	// request again.
	if notifs, _ := f.notifStore.List(ctx, "alice"); len(notifs) != 0 {
		t.Errorf("sender should not learn of the rejection, got %+v", notifs)
	}
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "bob"); err != nil {
		t.Errorf("re-request after rejection should be allowed: %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newSyncFixture(t, "alice", "bob")
	ctx := context.Background()

	if _, err := f.friendReqs.Send(ctx, "", "alice", "bob"); errors.CodeOf(err) != errors.ErrUnauthenticated.Code {
		t.Errorf("expected UNAUTHENTICATED, got %v", err)
	}
	if _, err := f.friendReqs.Send(ctx, "mallory", "alice", "bob"); errors.CodeOf(err) != errors.ErrUnauthorized.Code {
		t.Errorf("expected UNAUTHORIZED for impersonation, got %v", err)
	}
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "alice"); errors.CodeOf(err) != errors.ErrInvalidArgument.Code {
		t.Errorf("expected INVALID_ARGUMENT for self-request, got %v", err)
	}
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "ghost"); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND for unknown recipient, got %v", err)
	}

	// Duplicate pending request.
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "bob"); errors.CodeOf(err) != errors.ErrAlreadyExists.Code {
		t.Errorf("expected ALREADY_EXISTS for duplicate pending, got %v", err)
	}
}

func TestSendToExistingFriendRejected(t *testing.T) {
	f := newSyncFixture(t, "alice", "bob")
	ctx := context.Background()
	if err := f.graph.AddFriendBidirectional(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.friendReqs.Send(ctx, "alice", "alice", "bob"); errors.CodeOf(err) != errors.ErrAlreadyExists.Code {
		t.Errorf("expected ALREADY_EXISTS for existing friendship, got %v", err)
	}
}

func TestAcceptReleasesClaimWhenGraphFails(t *testing.T) {
	f := newSyncFixture(t, "bob")
	ctx := context.Background()

	// A request whose sender has no durable profile: the claim succeeds
	// but the graph mutation cannot.
	req := models.FriendRequest{
		ID:         "req-ghost",
		FromUserID: "ghost",
		Timestamp:  time.Now().UTC(),
		Status:     models.RequestPending,
	}
	if err := f.requests.Create(ctx, "bob", req); err != nil {
		t.Fatal(err)
	}

	if _, err := f.friendReqs.Accept(ctx, "bob", req.ID); !errors.IsNotFound(err) {
		t.Fatalf("expected graph failure surfaced, got %v", err)
	}

	// The claim was released: the request is pending and still resolvable.
	got, err := f.requests.Get(ctx, "bob", req.ID)
	if err != nil {
		t.Fatalf("request should survive a failed accept: %v", err)
	}
	if got.Status != models.RequestPending {
		t.Errorf("request status = %s, want pending after release", got.Status)
	}
	if err := f.friendReqs.Reject(ctx, "bob", req.ID); err != nil {
		t.Errorf("released request should still be resolvable: %v", err)
	}
}

func TestRemoveFriendViaCoordinator(t *testing.T) {
	f := newSyncFixture(t, "alice", "bob")
	ctx := context.Background()
	coordinator := NewSyncCoordinator(f.graph, f.requests, f.notifications, f.notifStore)

	if err := f.graph.AddFriendBidirectional(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := coordinator.RemoveFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("RemoveFriend failed: %v", err)
	}
	alice, _ := f.profiles.Get(ctx, "alice")
	bob, _ := f.profiles.Get(ctx, "bob")
	if alice.HasFriend("bob") || bob.HasFriend("alice") {
		t.Error("removal should clear both sides")
	}

	if err := coordinator.RemoveFriend(ctx, "alice", "alice"); errors.CodeOf(err) != errors.ErrInvalidArgument.Code {
		t.Errorf("expected INVALID_ARGUMENT for self-removal, got %v", err)
	}
	if err := coordinator.RemoveFriend(ctx, "", "bob"); errors.CodeOf(err) != errors.ErrUnauthenticated.Code {
		t.Errorf("expected UNAUTHENTICATED, got %v", err)
	}
}
