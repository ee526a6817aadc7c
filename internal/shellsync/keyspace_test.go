package shellsync

import "testing"

func TestKeyspaceIsByteExact(t *testing.T) {
	if releaseKey("T1") != "T1_RELEASE_ID" {
		t.Fatalf("unexpected release key: %s", releaseKey("T1"))
	}
	if reloadKey("T1") != "T1_RELOAD_ID" {
		t.Fatalf("unexpected reload key: %s", reloadKey("T1"))
	}
	if keyShellChangedID != "SHELL_CHANGED_ID" {
		t.Fatalf("unexpected heartbeat key: %s", keyShellChangedID)
	}
	if keyShellCreatedID != "SHELL_CREATED_ID" {
		t.Fatalf("unexpected creation key: %s", keyShellCreatedID)
	}
}
