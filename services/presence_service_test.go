package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/stores"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

// fakePresenceStore records publishes and lets tests drive Watch
// channels by hand. Multiple concurrent watchers per id are supported,
// like the real pub/sub store.
type fakePresenceStore struct {
	mu        sync.Mutex
	records   map[models.ProfileID]*models.PresenceRecord
	published []models.PresenceRecord
	watchers  map[models.ProfileID]map[chan *models.PresenceRecord]struct{}
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{
		records:  make(map[models.ProfileID]*models.PresenceRecord),
		watchers: make(map[models.ProfileID]map[chan *models.PresenceRecord]struct{}),
	}
}

func (f *fakePresenceStore) Publish(ctx context.Context, id models.ProfileID, rec models.PresenceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = &rec
	f.published = append(f.published, rec)
	return nil
}

func (f *fakePresenceStore) Get(ctx context.Context, id models.ProfileID) (*models.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id], nil
}

func (f *fakePresenceStore) Delete(ctx context.Context, id models.ProfileID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakePresenceStore) Watch(ctx context.Context, id models.ProfileID) (<-chan *models.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *models.PresenceRecord, 8)
	if f.watchers[id] == nil {
		f.watchers[id] = make(map[chan *models.PresenceRecord]struct{})
	}
	f.watchers[id][ch] = struct{}{}
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers[id], ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *fakePresenceStore) push(id models.ProfileID, rec *models.PresenceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.watchers[id] {
		ch <- rec
	}
}

func (f *fakePresenceStore) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newGatedPublisher(store stores.PresenceStore) (*PresencePublisher, *time.Time) {
	p := NewPresencePublisher(store, 30*time.Second, 50.0)
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestPublishFirstAlwaysGoesThrough(t *testing.T) {
	store := newFakePresenceStore()
	p, _ := newGatedPublisher(store)

	published, err := p.Publish(context.Background(), "amy", "amy", models.Coordinate{Latitude: 30.26, Longitude: -97.77})
	if err != nil {
		t.Fatal(err)
	}
	if !published {
		t.Error("first publish should never be suppressed")
	}
}

func TestPublishSuppressesSubThresholdJitter(t *testing.T) {
	store := newFakePresenceStore()
	p, now := newGatedPublisher(store)
	ctx := context.Background()
	base := models.Coordinate{Latitude: 30.2600, Longitude: -97.7700}

	if _, err := p.Publish(ctx, "amy", "amy", base); err != nil {
		t.Fatal(err)
	}

	// A few seconds and a few meters at a time: neither gate opens.
	for i := 0; i < 5; i++ {
		*now = now.Add(2 * time.Second)
		jitter := models.Coordinate{Latitude: base.Latitude + 0.00001, Longitude: base.Longitude}
		published, err := p.Publish(ctx, "amy", "amy", jitter)
		if err != nil {
			t.Fatal(err)
		}
		if published {
			t.Fatalf("jitter publish #%d should be suppressed", i+1)
		}
	}
	if store.publishCount() != 1 {
		t.Errorf("expected exactly 1 store write, got %d", store.publishCount())
	}
}

func TestPublishTimeGateOpens(t *testing.T) {
	store := newFakePresenceStore()
	p, now := newGatedPublisher(store)
	ctx := context.Background()
	base := models.Coordinate{Latitude: 30.26, Longitude: -97.77}

	p.Publish(ctx, "amy", "amy", base)
	*now = now.Add(31 * time.Second)
	published, err := p.Publish(ctx, "amy", "amy", base)
	if err != nil {
		t.Fatal(err)
	}
	if !published {
		t.Error("elapsed time beyond the gate should publish even without movement")
	}
}

func TestPublishDistanceGateOpens(t *testing.T) {
	store := newFakePresenceStore()
	p, now := newGatedPublisher(store)
	ctx := context.Background()

	p.Publish(ctx, "amy", "amy", models.Coordinate{Latitude: 30.2600, Longitude: -97.7700})
	*now = now.Add(time.Second)
	// ~111m north; well past the 50m gate.
	published, err := p.Publish(ctx, "amy", "amy", models.Coordinate{Latitude: 30.2610, Longitude: -97.7700})
	if err != nil {
		t.Fatal(err)
	}
	if !published {
		t.Error("displacement beyond the gate should publish immediately")
	}
}

func TestPublishGateRelativeToLastPublished(t *testing.T) {
	store := newFakePresenceStore()
	p, now := newGatedPublisher(store)
	ctx := context.Background()

	p.Publish(ctx, "amy", "amy", models.Coordinate{Latitude: 30.26000, Longitude: -97.77})
	// Creep in sub-threshold steps; each suppressed fix must not move
	// the reference point, so the accumulated displacement eventually
	// crosses the gate.
	published := false
	for i := 1; i <= 20 && !published; i++ {
		*now = now.Add(time.Second)
		step := models.Coordinate{Latitude: 30.26000 + float64(i)*0.0001, Longitude: -97.77}
		var err error
		published, err = p.Publish(ctx, "amy", "amy", step)
		if err != nil {
			t.Fatal(err)
		}
	}
	if !published {
		t.Error("accumulated drift past the gate never published; gate is tracking raw fixes instead of published points")
	}
}

func TestPublishAuthorization(t *testing.T) {
	store := newFakePresenceStore()
	p, _ := newGatedPublisher(store)
	ctx := context.Background()

	if _, err := p.Publish(ctx, "", "amy", models.Coordinate{}); errors.CodeOf(err) != errors.ErrUnauthenticated.Code {
		t.Errorf("expected UNAUTHENTICATED, got %v", err)
	}
	if _, err := p.Publish(ctx, "mallory", "amy", models.Coordinate{}); errors.CodeOf(err) != errors.ErrUnauthorized.Code {
		t.Errorf("expected UNAUTHORIZED, got %v", err)
	}
	if _, err := p.Publish(ctx, "amy", "amy", models.Coordinate{Latitude: 91}); errors.CodeOf(err) != errors.ErrInvalidArgument.Code {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func observerFixture(t *testing.T) (*PresenceObserver, *fakePresenceStore) {
	t.Helper()
	profileStore := stores.NewMemoryProfileStore()
	if err := profileStore.Create(context.Background(), models.Profile{ID: "amy"}); err != nil {
		t.Fatal(err)
	}
	presence := newFakePresenceStore()
	g, err := NewGeofence(Ring{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 0},
	}, []Ring{{
		{Latitude: 1, Longitude: 1},
		{Latitude: 1, Longitude: 9},
		{Latitude: 9, Longitude: 9},
		{Latitude: 9, Longitude: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	return NewPresenceObserver(presence, profileStore, g), presence
}

func collectUpdates(t *testing.T, o *PresenceObserver, id models.ProfileID) (<-chan *PresenceUpdate, *Subscription) {
	t.Helper()
	ch := make(chan *PresenceUpdate, 16)
	sub, err := o.Observe(context.Background(), id, func(u *PresenceUpdate) { ch <- u })
	if err != nil {
		t.Fatal(err)
	}
	return ch, sub
}

func waitUpdate(t *testing.T, ch <-chan *PresenceUpdate) *PresenceUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence update")
		return nil
	}
}

func TestObserveMapsThroughGeofence(t *testing.T) {
	o, presence := observerFixture(t)
	ch, sub := collectUpdates(t, o, "amy")
	defer sub.Stop()

	presence.push("amy", &models.PresenceRecord{Latitude: 5, Longitude: 5})
	u := waitUpdate(t, ch)
	if u == nil || !u.OnTrail {
		t.Errorf("point inside the activity zone should be on-trail, got %+v", u)
	}

	presence.push("amy", &models.PresenceRecord{Latitude: 0.5, Longitude: 0.5})
	u = waitUpdate(t, ch)
	if u == nil || u.OnTrail {
		t.Errorf("buffer point should be present but off-trail, got %+v", u)
	}

	// nil record means "no presence", distinct from off-trail.
	presence.push("amy", nil)
	if u := waitUpdate(t, ch); u != nil {
		t.Errorf("deleted record should deliver nil, got %+v", u)
	}
}

func TestStopNoCallbackAfterReturn(t *testing.T) {
	o, presence := observerFixture(t)
	var mu sync.Mutex
	fired := 0
	sub, err := o.Observe(context.Background(), "amy", func(*PresenceUpdate) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	presence.push("amy", &models.PresenceRecord{Latitude: 5, Longitude: 5})
	sub.Stop()
	mu.Lock()
	before := fired
	mu.Unlock()

	// Any push after Stop returns must not reach the callback.
	presence.push("amy", &models.PresenceRecord{Latitude: 6, Longitude: 6})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := fired
	mu.Unlock()
	if after != before {
		t.Errorf("callback fired %d times after Stop returned", after-before)
	}

	// Idempotent.
	sub.Stop()
	o.StopObservingAll()
}

func TestConcurrentObserversIndependent(t *testing.T) {
	o, presence := observerFixture(t)
	first := make(chan *PresenceUpdate, 16)
	firstSub, err := o.Observe(context.Background(), "amy", func(u *PresenceUpdate) { first <- u })
	if err != nil {
		t.Fatal(err)
	}
	second := make(chan *PresenceUpdate, 16)
	secondSub, err := o.Observe(context.Background(), "amy", func(u *PresenceUpdate) { second <- u })
	if err != nil {
		t.Fatal(err)
	}
	defer secondSub.Stop()

	// Both subscriptions receive while both are live; opening the second
	// must not displace the first.
	presence.push("amy", &models.PresenceRecord{Latitude: 5, Longitude: 5})
	if u := waitUpdate(t, first); u == nil {
		t.Fatal("first subscription missed an update after the second opened")
	}
	if u := waitUpdate(t, second); u == nil {
		t.Fatal("second subscription missed an update")
	}

	// One consumer going away leaves the other's stream intact.
	firstSub.Stop()
	presence.push("amy", &models.PresenceRecord{Latitude: 6, Longitude: 6})
	u := waitUpdate(t, second)
	if u == nil || u.Coordinate.Latitude != 6 {
		t.Errorf("surviving subscription should keep receiving, got %+v", u)
	}
	select {
	case u := <-first:
		t.Errorf("stopped subscription fired: %+v", u)
	default:
	}
}
