package stores

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// NotificationStore is the ephemeral store for queued notifications,
// keyed by recipient. Only the read flag is ever mutated in place.
type NotificationStore interface {
	Create(ctx context.Context, to models.ProfileID, rec models.NotificationRecord) error
	Get(ctx context.Context, to models.ProfileID, notificationID string) (models.NotificationRecord, error)
	List(ctx context.Context, to models.ProfileID) ([]models.NotificationRecord, error)
	MarkRead(ctx context.Context, to models.ProfileID, notificationID string) error
	Delete(ctx context.Context, to models.ProfileID, notificationID string) error
	// Watch signals whenever the recipient's queue changes; consumers
	// re-fetch the list on each signal. Closes when ctx is cancelled.
	Watch(ctx context.Context, to models.ProfileID) (<-chan struct{}, error)
}

// notificationTTL expires notifications nobody ever cleaned up.
const notificationTTL = 90 * 24 * time.Hour

// RedisNotificationStore stores each notification as JSON with a
// per-recipient index set and a pub/sub channel fired on every change.
type RedisNotificationStore struct {
	client *redis.Client
}

func NewRedisNotificationStore(client *redis.Client) *RedisNotificationStore {
	return &RedisNotificationStore{client: client}
}

func notificationKey(to models.ProfileID, id string) string {
	return "notifications:" + string(to) + ":" + id
}
func notificationIndexKey(to models.ProfileID) string { return "notifications:idx:" + string(to) }
func notificationChannel(to models.ProfileID) string  { return "notifications.updates:" + string(to) }

func (s *RedisNotificationStore) notifyWatchers(ctx context.Context, to models.ProfileID) {
	if err := s.client.Publish(ctx, notificationChannel(to), "update").Err(); err != nil {
		log.Printf("Failed to notify notification watchers for %s: %v", to, err)
	}
}

func (s *RedisNotificationStore) Create(ctx context.Context, to models.ProfileID, rec models.NotificationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to encode notification", http.StatusInternalServerError)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, notificationKey(to, rec.ID), data, notificationTTL)
	pipe.SAdd(ctx, notificationIndexKey(to), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to write notification", http.StatusInternalServerError)
	}
	s.notifyWatchers(ctx, to)
	return nil
}

func (s *RedisNotificationStore) Get(ctx context.Context, to models.ProfileID, notificationID string) (models.NotificationRecord, error) {
	data, err := s.client.Get(ctx, notificationKey(to, notificationID)).Result()
	if err == redis.Nil {
		return models.NotificationRecord{}, errors.ErrNotFound
	}
	if err != nil {
		return models.NotificationRecord{}, errors.Wrap(err, "INTERNAL", "failed to read notification", http.StatusInternalServerError)
	}
	var rec models.NotificationRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return models.NotificationRecord{}, errors.Wrap(err, "INTERNAL", "failed to decode notification", http.StatusInternalServerError)
	}
	return rec, nil
}

func (s *RedisNotificationStore) List(ctx context.Context, to models.ProfileID) ([]models.NotificationRecord, error) {
	ids, err := s.client.SMembers(ctx, notificationIndexKey(to)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "failed to list notifications", http.StatusInternalServerError)
	}
	var out []models.NotificationRecord
	for _, id := range ids {
		rec, err := s.Get(ctx, to, id)
		if errors.IsNotFound(err) {
			// Expired entry still in the index; drop it lazily.
			s.client.SRem(ctx, notificationIndexKey(to), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *RedisNotificationStore) MarkRead(ctx context.Context, to models.ProfileID, notificationID string) error {
	rec, err := s.Get(ctx, to, notificationID)
	if err != nil {
		return err
	}
	if rec.IsRead {
		return nil
	}
	rec.IsRead = true
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to encode notification", http.StatusInternalServerError)
	}
	if err := s.client.Set(ctx, notificationKey(to, notificationID), data, redis.KeepTTL).Err(); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to update notification", http.StatusInternalServerError)
	}
	s.notifyWatchers(ctx, to)
	return nil
}

func (s *RedisNotificationStore) Delete(ctx context.Context, to models.ProfileID, notificationID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, notificationKey(to, notificationID))
	pipe.SRem(ctx, notificationIndexKey(to), notificationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to delete notification", http.StatusInternalServerError)
	}
	s.notifyWatchers(ctx, to)
	return nil
}

func (s *RedisNotificationStore) Watch(ctx context.Context, to models.ProfileID) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, notificationChannel(to))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "INTERNAL", "failed to subscribe to notification updates", http.StatusInternalServerError)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		// Initial signal so the consumer loads the current queue.
		out <- struct{}{}
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				// Coalesce: a pending signal already forces a re-fetch.
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
