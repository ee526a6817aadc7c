package shellsync

import "testing"

func TestIdentifierTableStartsUnsetAndRemembersWrites(t *testing.T) {
	table := newIdentifierTable()

	rec := table.get("T1")
	if rec.ReleaseID != "" || rec.ReloadID != "" {
		t.Fatalf("expected both fields unset initially")
	}

	table.setReleaseID("T1", "r1")
	if table.get("T1").ReleaseID != "r1" {
		t.Fatalf("expected release id to be recorded")
	}

	table.setReloadID("T1", "l1")
	again := table.get("T1")
	if again.ReleaseID != "r1" || again.ReloadID != "l1" {
		t.Fatalf("expected both identifiers retained, got %+v", again)
	}
}

func TestIdentifierTableSnapshotIsACopy(t *testing.T) {
	table := newIdentifierTable()
	table.setReleaseID("T1", "r1")

	snap := table.snapshot()
	if snap["T1"].ReleaseID != "r1" {
		t.Fatalf("expected snapshot to reflect current state")
	}

	table.setReleaseID("T1", "r2")
	if snap["T1"].ReleaseID != "r1" {
		t.Fatalf("expected snapshot to be an independent copy")
	}
}
