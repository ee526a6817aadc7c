package shellsync

// Cache keys are byte-exact: every peer process must agree on them without
// any coordination beyond this constant list.
const (
	// keyShellChangedID is the heartbeat key: the latest release-or-reload
	// id published by any peer, for any tenant. The poller reads only this
	// key on every tick; all other keys are read only when it changes.
	keyShellChangedID = "SHELL_CHANGED_ID"

	// keyShellCreatedID holds the latest reload id whose target tenant did
	// not yet exist locally on the publishing peer. It signals peers to
	// rescan the settings store for tenants they have never seen.
	keyShellCreatedID = "SHELL_CREATED_ID"
)

// releaseKey returns the cache key holding the latest release id for the
// named tenant.
func releaseKey(name string) string {
	return name + "_RELEASE_ID"
}

// reloadKey returns the cache key holding the latest reload id for the
// named tenant.
func reloadKey(name string) string {
	return name + "_RELOAD_ID"
}
