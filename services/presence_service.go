package services

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// Default presence gates. Policy constants, not invariants; tune per
// deployment via env.
const (
	DefaultPresenceMinInterval = 15 * time.Second
	DefaultPresenceMinDistance = 25.0 // meters
)

// PresencePublisher writes a user's coordinate to the ephemeral store,
// gated so sub-threshold GPS jitter never reaches the network. A publish
// goes through when either the time gate or the distance gate is
// exceeded relative to the last successfully published point, not the
// last observed fix.
type PresencePublisher struct {
	store       stores.PresenceStore
	minInterval time.Duration
	minDistance float64
	now         func() time.Time

	mu   sync.Mutex
	last map[models.ProfileID]lastPublish
}

type lastPublish struct {
	coord models.Coordinate
	at    time.Time
}

func NewPresencePublisher(store stores.PresenceStore, minInterval time.Duration, minDistance float64) *PresencePublisher {
	return &PresencePublisher{
		store:       store,
		minInterval: minInterval,
		minDistance: minDistance,
		now:         time.Now,
		last:        make(map[models.ProfileID]lastPublish),
	}
}

// Publish writes a fresh presence record wholesale. Returns whether the
// write actually reached the store; a suppressed publish is not an
// error.
func (p *PresencePublisher) Publish(ctx context.Context, caller, userID models.ProfileID, coord models.Coordinate) (bool, error) {
	if caller == "" {
		return false, errors.ErrUnauthenticated
	}
	if caller != userID {
		return false, errors.ErrUnauthorized
	}
	if !coord.Valid() {
		return false, errors.ErrInvalidArgument
	}

	now := p.now().UTC()
	p.mu.Lock()
	prev, seen := p.last[userID]
	p.mu.Unlock()
	if seen &&
		now.Sub(prev.at) < p.minInterval &&
		HaversineMeters(prev.coord, coord) < p.minDistance {
		return false, nil
	}

	rec := models.PresenceRecord{
		Latitude:    coord.Latitude,
		Longitude:   coord.Longitude,
		Timestamp:   now,
		LastUpdated: now,
	}
	if err := p.store.Publish(ctx, userID, rec); err != nil {
		return false, err
	}

	// Only a successful write moves the gate reference point.
	p.mu.Lock()
	p.last[userID] = lastPublish{coord: coord, at: now}
	p.mu.Unlock()
	return true, nil
}

// ClearPresence removes the user's record, e.g. when they stop sharing.
func (p *PresencePublisher) ClearPresence(ctx context.Context, caller, userID models.ProfileID) error {
	if caller == "" {
		return errors.ErrUnauthenticated
	}
	if caller != userID {
		return errors.ErrUnauthorized
	}
	p.mu.Lock()
	delete(p.last, userID)
	p.mu.Unlock()
	return p.store.Delete(ctx, userID)
}

// HaversineMeters is the great-circle distance between two coordinates.
func HaversineMeters(a, b models.Coordinate) float64 {
	const earthRadiusM = 6371000.0
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PresenceUpdate is the UI-agnostic presence state delivered to
// observers. A nil update means "no presence record", which is distinct
// from OnTrail being false (present but off the trail).
type PresenceUpdate struct {
	Coordinate  models.Coordinate `json:"coordinate"`
	Timestamp   time.Time         `json:"timestamp"`
	LastUpdated time.Time         `json:"last_updated"`
	OnTrail     bool              `json:"on_trail"`
}

// PresenceObserver subscribes to other users' presence streams and maps
// each record through the geofence. Each Observe call opens an
// independent subscription; concurrent observers of the same user do not
// disturb each other.
type PresenceObserver struct {
	store    stores.PresenceStore
	profiles stores.ProfileStore
	geofence *Geofence

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewPresenceObserver(store stores.PresenceStore, profiles stores.ProfileStore, geofence *Geofence) *PresenceObserver {
	return &PresenceObserver{
		store:    store,
		profiles: profiles,
		geofence: geofence,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Observe resolves the user's ephemeral-store identifier via their
// profile (following a migration tombstone if one is set; the durable id
// is not assumed equal to the presence key) and streams updates to
// onChange until the returned handle is stopped. onChange runs on a
// dedicated goroutine; keep it fast and dispatch heavy work onward.
func (o *PresenceObserver) Observe(ctx context.Context, userID models.ProfileID, onChange func(*PresenceUpdate)) (*Subscription, error) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	presenceID := profile.ID
	if profile.MigratedToUserID != "" {
		presenceID = profile.MigratedToUserID
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	records, err := o.store.Watch(watchCtx, presenceID)
	if err != nil {
		cancel()
		return nil, err
	}
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	sub.unregister = func() {
		o.mu.Lock()
		delete(o.subs, sub)
		o.mu.Unlock()
	}
	o.mu.Lock()
	o.subs[sub] = struct{}{}
	o.mu.Unlock()

	go func() {
		defer close(sub.done)
		for rec := range records {
			if watchCtx.Err() != nil {
				return
			}
			onChange(o.toUpdate(rec))
		}
	}()
	return sub, nil
}

func (o *PresenceObserver) toUpdate(rec *models.PresenceRecord) *PresenceUpdate {
	if rec == nil {
		return nil
	}
	return &PresenceUpdate{
		Coordinate:  rec.Coordinate(),
		Timestamp:   rec.Timestamp,
		LastUpdated: rec.LastUpdated,
		OnTrail:     o.geofence.IsOnTrail(rec.Coordinate()),
	}
}

// Snapshot returns the user's current presence state once, nil when no
// record exists. Same identifier resolution as Observe.
func (o *PresenceObserver) Snapshot(ctx context.Context, userID models.ProfileID) (*PresenceUpdate, error) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	presenceID := profile.ID
	if profile.MigratedToUserID != "" {
		presenceID = profile.MigratedToUserID
	}
	rec, err := o.store.Get(ctx, presenceID)
	if err != nil {
		return nil, err
	}
	return o.toUpdate(rec), nil
}

// StopObservingAll tears down every live subscription, e.g. on shutdown.
func (o *PresenceObserver) StopObservingAll() {
	o.mu.Lock()
	subs := make([]*Subscription, 0, len(o.subs))
	for sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}
