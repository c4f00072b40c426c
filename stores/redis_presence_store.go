package stores

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// PresenceStore is the ephemeral store for per-user location records.
// Records are overwritten wholesale; Watch delivers push updates.
type PresenceStore interface {
	// Publish overwrites the user's presence record.
	Publish(ctx context.Context, id models.ProfileID, rec models.PresenceRecord) error
	// Get returns nil (and no error) when the user has no presence record.
	Get(ctx context.Context, id models.ProfileID) (*models.PresenceRecord, error)
	Delete(ctx context.Context, id models.ProfileID) error
	// Watch streams the user's presence. The current record (or nil) is
	// delivered first, then one value per update; a nil value means the
	// record was removed. The channel closes when ctx is cancelled.
	Watch(ctx context.Context, id models.ProfileID) (<-chan *models.PresenceRecord, error)
}

// presenceTTL bounds how long a stale record lingers after a user stops
// publishing.
const presenceTTL = time.Hour

// RedisPresenceStore keeps one JSON record per user plus a pub/sub
// channel that fires on every write.
type RedisPresenceStore struct {
	client *redis.Client
}

func NewRedisPresenceStore(client *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{client: client}
}

func presenceKey(id models.ProfileID) string     { return "presence:" + string(id) }
func presenceChannel(id models.ProfileID) string { return "presence.updates:" + string(id) }

func (s *RedisPresenceStore) Publish(ctx context.Context, id models.ProfileID, rec models.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to encode presence record", http.StatusInternalServerError)
	}
	if err := s.client.Set(ctx, presenceKey(id), data, presenceTTL).Err(); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to write presence record", http.StatusInternalServerError)
	}
	if err := s.client.Publish(ctx, presenceChannel(id), "update").Err(); err != nil {
		log.Printf("Failed to notify presence watchers for %s: %v", id, err)
	}
	return nil
}

func (s *RedisPresenceStore) Get(ctx context.Context, id models.ProfileID) (*models.PresenceRecord, error) {
	data, err := s.client.Get(ctx, presenceKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "failed to read presence record", http.StatusInternalServerError)
	}
	var rec models.PresenceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "failed to decode presence record", http.StatusInternalServerError)
	}
	return &rec, nil
}

func (s *RedisPresenceStore) Delete(ctx context.Context, id models.ProfileID) error {
	if err := s.client.Del(ctx, presenceKey(id)).Err(); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to delete presence record", http.StatusInternalServerError)
	}
	if err := s.client.Publish(ctx, presenceChannel(id), "delete").Err(); err != nil {
		log.Printf("Failed to notify presence watchers for %s: %v", id, err)
	}
	return nil
}

func (s *RedisPresenceStore) Watch(ctx context.Context, id models.ProfileID) (<-chan *models.PresenceRecord, error) {
	pubsub := s.client.Subscribe(ctx, presenceChannel(id))
	// Wait for the subscription to be confirmed so an update published
	// right after Watch returns cannot be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "INTERNAL", "failed to subscribe to presence updates", http.StatusInternalServerError)
	}

	out := make(chan *models.PresenceRecord, 8)
	go func() {
		defer close(out)
		defer pubsub.Close()

		// Initial snapshot, then one value per update.
		if rec, err := s.Get(ctx, id); err == nil {
			out <- rec
		}
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				rec, err := s.Get(ctx, id)
				if err != nil {
					log.Printf("Failed to read presence for %s after update: %v", id, err)
					continue
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
