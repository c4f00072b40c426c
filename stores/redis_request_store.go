package stores

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// RequestStore is the ephemeral store for pending friend requests, keyed
// by recipient. A request exists only while pending: Claim atomically
// moves it out of the pending state so that of two concurrent resolvers
// exactly one wins, and Delete removes it once resolution is done.
type RequestStore interface {
	Create(ctx context.Context, to models.ProfileID, req models.FriendRequest) error
	Get(ctx context.Context, to models.ProfileID, requestID string) (models.FriendRequest, error)
	List(ctx context.Context, to models.ProfileID) ([]models.FriendRequest, error)
	// Claim transitions the request from pending to status and returns
	// the sender's id. A missing or already-claimed request yields
	// NOT_FOUND, which callers treat as "someone else resolved it".
	Claim(ctx context.Context, to models.ProfileID, requestID string, status models.RequestStatus) (models.ProfileID, error)
	// Release puts a claimed request back to pending, used when the
	// durable mutation after a claim fails.
	Release(ctx context.Context, to models.ProfileID, requestID string) error
	Delete(ctx context.Context, to models.ProfileID, requestID string, from models.ProfileID) error
}

// requestTTL expires abandoned pending requests.
const requestTTL = 30 * 24 * time.Hour

// claimScript compare-and-sets status away from pending and returns the
// sender id, all in one atomic step on the server.
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'pending' then
	return false
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return redis.call('HGET', KEYS[1], 'from')
`)

// releaseScript restores pending only if the record still exists, so a
// release racing a delete cannot resurrect the key.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'status', 'pending')
	return 1
end
return 0
`)

// RedisRequestStore stores each request as a hash under the recipient,
// with a per-recipient index set and a per-pair marker that enforces at
// most one pending request between the same sender and recipient.
type RedisRequestStore struct {
	client *redis.Client
}

func NewRedisRequestStore(client *redis.Client) *RedisRequestStore {
	return &RedisRequestStore{client: client}
}

func requestKey(to models.ProfileID, id string) string { return "friendreq:" + string(to) + ":" + id }
func requestIndexKey(to models.ProfileID) string       { return "friendreq:idx:" + string(to) }
func requestPairKey(to, from models.ProfileID) string {
	return "friendreq:pair:" + string(to) + ":" + string(from)
}

func (s *RedisRequestStore) Create(ctx context.Context, to models.ProfileID, req models.FriendRequest) error {
	// One pending request per (sender, recipient) pair; the marker is
	// removed on resolution so a later re-request is allowed.
	set, err := s.client.SetNX(ctx, requestPairKey(to, req.FromUserID), req.ID, requestTTL).Result()
	if err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to reserve friend request", http.StatusInternalServerError)
	}
	if !set {
		return errors.ErrAlreadyExists
	}

	key := requestKey(to, req.ID)
	fields := map[string]interface{}{
		"id":        req.ID,
		"from":      string(req.FromUserID),
		"timestamp": req.Timestamp.UTC().Format(time.RFC3339Nano),
		"status":    string(models.RequestPending),
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, requestTTL)
	pipe.SAdd(ctx, requestIndexKey(to), req.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to write friend request", http.StatusInternalServerError)
	}
	return nil
}

func (s *RedisRequestStore) Get(ctx context.Context, to models.ProfileID, requestID string) (models.FriendRequest, error) {
	fields, err := s.client.HGetAll(ctx, requestKey(to, requestID)).Result()
	if err != nil {
		return models.FriendRequest{}, errors.Wrap(err, "INTERNAL", "failed to read friend request", http.StatusInternalServerError)
	}
	if len(fields) == 0 {
		return models.FriendRequest{}, errors.ErrNotFound
	}
	return decodeRequest(fields), nil
}

func decodeRequest(fields map[string]string) models.FriendRequest {
	ts, _ := time.Parse(time.RFC3339Nano, fields["timestamp"])
	return models.FriendRequest{
		ID:         fields["id"],
		FromUserID: models.ProfileID(fields["from"]),
		Timestamp:  ts,
		Status:     models.RequestStatus(fields["status"]),
	}
}

func (s *RedisRequestStore) List(ctx context.Context, to models.ProfileID) ([]models.FriendRequest, error) {
	ids, err := s.client.SMembers(ctx, requestIndexKey(to)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "INTERNAL", "failed to list friend requests", http.StatusInternalServerError)
	}
	var out []models.FriendRequest
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, requestKey(to, id)).Result()
		if err != nil || len(fields) == 0 {
			// Expired entry still in the index; drop it lazily.
			s.client.SRem(ctx, requestIndexKey(to), id)
			continue
		}
		out = append(out, decodeRequest(fields))
	}
	return out, nil
}

func (s *RedisRequestStore) Claim(ctx context.Context, to models.ProfileID, requestID string, status models.RequestStatus) (models.ProfileID, error) {
	res, err := claimScript.Run(ctx, s.client, []string{requestKey(to, requestID)}, string(status)).Result()
	if err == redis.Nil || res == nil {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "INTERNAL", "failed to claim friend request", http.StatusInternalServerError)
	}
	from, ok := res.(string)
	if !ok || from == "" {
		return "", errors.ErrNotFound
	}
	return models.ProfileID(from), nil
}

func (s *RedisRequestStore) Release(ctx context.Context, to models.ProfileID, requestID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{requestKey(to, requestID)}).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "INTERNAL", "failed to release friend request", http.StatusInternalServerError)
	}
	return nil
}

func (s *RedisRequestStore) Delete(ctx context.Context, to models.ProfileID, requestID string, from models.ProfileID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, requestKey(to, requestID))
	pipe.SRem(ctx, requestIndexKey(to), requestID)
	pipe.Del(ctx, requestPairKey(to, from))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "INTERNAL", "failed to delete friend request", http.StatusInternalServerError)
	}
	return nil
}
