package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// NotificationService routes queued notification records. Writes into a
// user's queue are graph-gated: only the user themself or someone in
// their current friend set may write, enforced here rather than trusted
// to clients. System-originated records (friend-request fan-out) bypass
// the gate via SendSystem.
type NotificationService struct {
	store    stores.NotificationStore
	profiles stores.ProfileStore

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewNotificationService(store stores.NotificationStore, profiles stores.ProfileStore) *NotificationService {
	return &NotificationService{
		store:    store,
		profiles: profiles,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Send queues a notification at to, after checking the caller may write
// there.
func (s *NotificationService) Send(ctx context.Context, caller, to models.ProfileID, typ models.NotificationType, title, message, relatedEventID string) (models.NotificationRecord, error) {
	if caller == "" {
		return models.NotificationRecord{}, errors.ErrUnauthenticated
	}
	if to == "" {
		return models.NotificationRecord{}, errors.ErrInvalidArgument
	}
	if caller != to {
		recipient, err := s.profiles.Get(ctx, to)
		if err != nil {
			return models.NotificationRecord{}, err
		}
		if !recipient.HasFriend(caller) {
			return models.NotificationRecord{}, errors.ErrUnauthorized
		}
	}
	return s.SendSystem(ctx, to, typ, title, message, caller, relatedEventID)
}

// SendSystem queues a notification without the graph gate. Used for
// system fan-out such as friend-request delivery, where the sender is by
// definition not yet in the recipient's friend set.
func (s *NotificationService) SendSystem(ctx context.Context, to models.ProfileID, typ models.NotificationType, title, message string, from models.ProfileID, relatedEventID string) (models.NotificationRecord, error) {
	rec := models.NotificationRecord{
		ID:             uuid.New().String(),
		Type:           typ,
		Title:          title,
		Message:        message,
		Timestamp:      time.Now().UTC(),
		FromUserID:     from,
		RelatedEventID: relatedEventID,
	}
	if err := s.store.Create(ctx, to, rec); err != nil {
		return models.NotificationRecord{}, err
	}
	return rec, nil
}

// Fetch returns the caller's queue, newest first.
func (s *NotificationService) Fetch(ctx context.Context, caller, userID models.ProfileID) ([]models.NotificationRecord, error) {
	if caller == "" {
		return nil, errors.ErrUnauthenticated
	}
	if caller != userID {
		return nil, errors.ErrUnauthorized
	}
	return s.store.List(ctx, userID)
}

// MarkRead flips the read flag; the only in-place mutation a
// notification ever sees.
func (s *NotificationService) MarkRead(ctx context.Context, caller, userID models.ProfileID, notificationID string) error {
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if caller != userID {
		return errors.ErrUnauthorized
	}
	return s.store.MarkRead(ctx, userID, notificationID)
}

// Delete removes a notification from the caller's own queue.
func (s *NotificationService) Delete(ctx context.Context, caller, userID models.ProfileID, notificationID string) error {
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if caller != userID {
		return errors.ErrUnauthorized
	}
	return s.store.Delete(ctx, userID, notificationID)
}

// Observe subscribes to the user's queue and invokes onChange with the
// full queue on every change (including once immediately). Each call
// opens an independent subscription, so concurrent consumers of the same
// queue never disturb each other; the caller owns the returned handle
// and must Stop it.
func (s *NotificationService) Observe(userID models.ProfileID, onChange func([]models.NotificationRecord)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	signals, err := s.store.Watch(ctx, userID)
	if err != nil {
		cancel()
		return nil, err
	}
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	sub.unregister = func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(sub.done)
		for range signals {
			if ctx.Err() != nil {
				return
			}
			recs, err := s.store.List(ctx, userID)
			if err != nil {
				continue
			}
			onChange(recs)
		}
	}()
	return sub, nil
}

// StopObservingAll tears down every live subscription, e.g. on shutdown.
func (s *NotificationService) StopObservingAll() {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

// Subscription is one live watch, owned by the caller that opened it.
// Stop cancels the watch and waits for the dispatch goroutine to exit,
// so no callback fires after Stop returns. Idempotent.
type Subscription struct {
	cancel     context.CancelFunc
	done       chan struct{}
	unregister func()
	stopOnce   sync.Once
}

func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		if s.unregister != nil {
			s.unregister()
		}
		s.cancel()
		<-s.done
	})
}
