package stores

import (
	"context"
	"testing"
	"time"

	"github.com/jakekinchen/TrailMates-sub002/models"
)

func presenceRecordAt(lat, lon float64) models.PresenceRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.PresenceRecord{
		Latitude:    lat,
		Longitude:   lon,
		Timestamp:   now,
		LastUpdated: now,
	}
}

func TestPresencePublishGetDelete(t *testing.T) {
	store := NewRedisPresenceStore(newTestRedis(t))
	ctx := context.Background()

	// No record yet: nil, no error.
	rec, err := store.Get(ctx, "amy")
	if err != nil {
		t.Fatalf("Get on empty store failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}

	want := presenceRecordAt(30.26, -97.77)
	if err := store.Publish(ctx, "amy", want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	rec, err = store.Get(ctx, "amy")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Latitude != want.Latitude || rec.Longitude != want.Longitude {
		t.Errorf("round-trip mismatch: got %+v, want %+v", rec, want)
	}
	if !rec.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp round-trip: got %v, want %v", rec.Timestamp, want.Timestamp)
	}

	// Publishing again overwrites wholesale.
	next := presenceRecordAt(30.27, -97.76)
	if err := store.Publish(ctx, "amy", next); err != nil {
		t.Fatal(err)
	}
	rec, _ = store.Get(ctx, "amy")
	if rec == nil || rec.Latitude != next.Latitude {
		t.Errorf("overwrite did not take: %+v", rec)
	}

	if err := store.Delete(ctx, "amy"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	rec, err = store.Get(ctx, "amy")
	if err != nil || rec != nil {
		t.Errorf("expected nil after delete, got %+v, %v", rec, err)
	}
}

func waitRecord(t *testing.T, ch <-chan *models.PresenceRecord) *models.PresenceRecord {
	t.Helper()
	select {
	case rec, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence update")
		return nil
	}
}

func TestPresenceWatchDeliversSnapshotThenUpdates(t *testing.T) {
	store := NewRedisPresenceStore(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Publish(ctx, "amy", presenceRecordAt(30.26, -97.77)); err != nil {
		t.Fatal(err)
	}
	ch, err := store.Watch(ctx, "amy")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Existing record arrives first without any publish.
	if rec := waitRecord(t, ch); rec == nil || rec.Latitude != 30.26 {
		t.Fatalf("expected initial snapshot, got %+v", rec)
	}

	if err := store.Publish(ctx, "amy", presenceRecordAt(30.27, -97.76)); err != nil {
		t.Fatal(err)
	}
	if rec := waitRecord(t, ch); rec == nil || rec.Latitude != 30.27 {
		t.Errorf("expected pushed update, got %+v", rec)
	}

	// Deletion is pushed as nil.
	if err := store.Delete(ctx, "amy"); err != nil {
		t.Fatal(err)
	}
	if rec := waitRecord(t, ch); rec != nil {
		t.Errorf("expected nil after delete, got %+v", rec)
	}
}

func TestPresenceWatchClosesOnCancel(t *testing.T) {
	store := NewRedisPresenceStore(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := store.Watch(ctx, "amy")
	if err != nil {
		t.Fatal(err)
	}
	// Drain the empty-store snapshot.
	waitRecord(t, ch)

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel did not close after cancel")
		}
	}
}

func TestPresenceWatchIsolatedPerUser(t *testing.T) {
	store := NewRedisPresenceStore(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Watch(ctx, "amy")
	if err != nil {
		t.Fatal(err)
	}
	waitRecord(t, ch) // empty snapshot

	if err := store.Publish(ctx, "bob", presenceRecordAt(30.26, -97.77)); err != nil {
		t.Fatal(err)
	}
	select {
	case rec := <-ch:
		t.Errorf("watcher of amy received bob's update: %+v", rec)
	case <-time.After(100 * time.Millisecond):
	}
}
