package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
)

func ids(items []testItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestUnchangedSnapshotDoesNotBumpVersionOrWriteCache(t *testing.T) {
	kv := cache.NewMemory()
	persister := cache.NewPersister(kv, nil)
	coll := NewCollection[testItem]("items", nil, nil)
	persister.Register(section[testItem]{key: "items-storage", field: "items", coll: coll})
	coll.OnCommit(Deps{Saver: persister}.persistHook("items"))

	snapshot := []testItem{{ID: "a", Value: "1"}, {ID: "b", Value: "2"}}
	if !coll.ApplyRemoteSnapshot("src", snapshot, Complete) {
		t.Fatalf("expected first snapshot to change the collection")
	}
	version := coll.Version()
	writes := kv.Writes()

	for i := 0; i < 3; i++ {
		if coll.ApplyRemoteSnapshot("src", []testItem{{ID: "a", Value: "1"}, {ID: "b", Value: "2"}}, Complete) {
			t.Fatalf("expected identical snapshot to be a no-op")
		}
	}
	if coll.Version() != version {
		t.Fatalf("version changed: %d -> %d", version, coll.Version())
	}
	if kv.Writes() != writes {
		t.Fatalf("cache written for unchanged snapshot: %d -> %d", writes, kv.Writes())
	}

	coll.ApplyRemoteSnapshot("src", []testItem{{ID: "a", Value: "changed"}, {ID: "b", Value: "2"}}, Complete)
	if coll.Version() != version+1 || kv.Writes() != writes+1 {
		t.Fatalf("expected one version bump and one cache write, got version %d writes %d", coll.Version(), kv.Writes())
	}
	if item, _ := coll.Get("a"); item.Value != "changed" {
		t.Fatalf("expected supplied value to win, got %q", item.Value)
	}
}

func TestPartialSnapshotsTrackTombstonesPerSource(t *testing.T) {
	coll := NewCollection[testItem]("items", nil, nil)

	coll.ApplyRemoteSnapshot("initiator", []testItem{{ID: "x"}, {ID: "y"}}, Partial)
	coll.ApplyRemoteSnapshot("recipient", []testItem{{ID: "x"}, {ID: "z"}}, Partial)
	coll.Put(testItem{ID: "local"})

	// x по-прежнему доставляет recipient
	coll.ApplyRemoteSnapshot("initiator", []testItem{{ID: "y"}}, Partial)
	if _, ok := coll.Get("x"); !ok {
		t.Fatalf("x must survive while another source still claims it")
	}

	coll.ApplyRemoteSnapshot("recipient", []testItem{{ID: "z"}}, Partial)
	if _, ok := coll.Get("x"); ok {
		t.Fatalf("x must be removed once no source claims it")
	}

	coll.ApplyRemoteSnapshot("initiator", nil, Partial)
	got := ids(coll.Items())
	want := []string{"local", "z"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCompleteSnapshotRemovesAbsentIDs(t *testing.T) {
	coll := NewCollection[testItem]("items", nil, nil)
	coll.Put(testItem{ID: "old"})
	coll.ApplyRemoteSnapshot("all", []testItem{{ID: "a"}, {ID: "b"}}, Complete)

	if _, ok := coll.Get("old"); ok {
		t.Fatalf("complete snapshot must remove absent ids")
	}
	if coll.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", coll.Len())
	}
}

func TestWatchReceivesChanges(t *testing.T) {
	coll := NewCollection[testItem]("items", nil, nil)
	var changes []Change
	stop := coll.Watch(func(c Change) { changes = append(changes, c) })

	coll.Put(testItem{ID: "a"})
	coll.Put(testItem{ID: "a"})
	coll.Remove("a")
	stop()
	stop()
	coll.Put(testItem{ID: "b"})

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Upserted[0] != "a" || changes[1].Removed[0] != "a" {
		t.Fatalf("unexpected changes: %+v", changes)
	}
	if changes[1].Version != changes[0].Version+1 {
		t.Fatalf("versions must be consecutive: %+v", changes)
	}
}

func TestBeginRejectsConcurrentDuplicate(t *testing.T) {
	coll := NewCollection[testItem]("items", nil, nil)
	done, err := coll.Begin(Fingerprint("ex-1", "status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := coll.Begin(Fingerprint("ex-1", "status")); !errors.Is(err, apperrors.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if _, err := coll.Begin(Fingerprint("ex-2", "status")); err != nil {
		t.Fatalf("other entity must not be blocked: %v", err)
	}
	done()
	done()
	if _, err := coll.Begin(Fingerprint("ex-1", "status")); err != nil {
		t.Fatalf("expected guard to be released: %v", err)
	}
}

func TestResetClearsStateAndError(t *testing.T) {
	coll := NewCollection[testItem]("items", nil, nil)
	coll.ApplyRemoteSnapshot("src", []testItem{{ID: "a"}}, Partial)
	coll.ReportError(errors.New("boom"))

	coll.Reset()
	st := coll.State()
	if len(st.Items) != 0 || st.Error != "" || st.Loading {
		t.Fatalf("unexpected state after reset: %+v", st)
	}

	// старые притязания источника не должны влиять на новые снимки
	coll.ApplyRemoteSnapshot("other", []testItem{{ID: "b"}}, Partial)
	coll.ApplyRemoteSnapshot("src", nil, Partial)
	if _, ok := coll.Get("b"); !ok {
		t.Fatalf("b must stay after unrelated source snapshot")
	}
}

func TestSectionRoundTripThroughPersister(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewMemory()

	src := NewCollection[testItem]("items", nil, nil)
	src.Put(testItem{ID: "a", Value: "1"})
	src.Put(testItem{ID: "b", Value: "2"})
	writer := cache.NewPersister(kv, nil)
	writer.Register(section[testItem]{key: "items-storage", field: "items", coll: src})
	if err := writer.Save(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := NewCollection[testItem]("items", nil, nil)
	reader := cache.NewPersister(kv, nil)
	reader.Register(section[testItem]{key: "items-storage", field: "items", coll: dst})
	version, err := reader.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected snapshot version 1, got %d", version)
	}
	if item, ok := dst.Get("b"); !ok || item.Value != "2" {
		t.Fatalf("expected hydrated item b, got %+v (%v)", item, ok)
	}
}
