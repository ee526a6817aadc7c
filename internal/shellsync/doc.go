// Package shellsync implements distributed tenant (shell) synchronization
// for a host process that runs many logically isolated tenants alongside
// peer processes serving the same set of tenants.
//
// Convergence across peers happens entirely through a shared distributed
// key-value cache: when a tenant is released or reloaded locally, this
// package publishes an opaque identifier into the cache; a background
// poller in every peer detects the change and applies the matching local
// action. There is no direct peer-to-peer communication.
package shellsync
