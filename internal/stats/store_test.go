package stats

import (
	"path/filepath"
	"testing"
)

func TestContributionCountsAccumulate(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "stats.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := store.RecordContribution("user@c.us")
		if err != nil {
			t.Fatalf("record contribution: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	if got, _ := store.RecordContribution("other@c.us"); got != 1 {
		t.Fatalf("counts must be per user, got %d", got)
	}
}

func TestCountersSurviveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.RecordContribution("user@c.us")
	store.RecordRequest()
	store.RecordRequest()
	store.RecordJoin("group@g.us")
	store.RecordLeave("group@g.us")
	store.RecordMessage("group@g.us")
	store.RecordMessage("group@g.us")

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}

	snap := reloaded.Snapshot()
	if snap.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", snap.Requests)
	}
	if snap.Lectures["user@c.us"] != 1 {
		t.Fatalf("expected 1 contribution, got %d", snap.Lectures["user@c.us"])
	}
	if snap.Joins["group@g.us"] != 1 || snap.Leaves["group@g.us"] != 1 || snap.Messages["group@g.us"] != 2 {
		t.Fatalf("unexpected group counters: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "stats.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.RecordJoin("group@g.us")

	snap := store.Snapshot()
	snap.Joins["group@g.us"] = 100

	if store.Snapshot().Joins["group@g.us"] != 1 {
		t.Fatalf("snapshot mutation must not affect the store")
	}
}
