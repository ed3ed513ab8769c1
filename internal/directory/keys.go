// Package directory implements the shared key-value directory contract:
// vnode ownership, vnode load, and the user->instance routing cache.
//
// The directory is externalized to Redis but specified here as a logical
// contract (see the three namespaces below). It is not a coordination
// primitive: it stores whatever ownership writes it receives, and the
// coordinator's register path does not serialize concurrent registrations
// (the last write to a vnode wins).
package directory

import "fmt"

// Namespace keys. Owners and loads are stored as Redis hashes (one field
// per vnode id) so that a partial-map write only touches the fields it
// names, never the whole namespace. The user cache is a plain string key
// per user, which naturally supports a per-entry TTL.
const (
	ownersKey = "vnode:owners"
	loadsKey  = "vnode:load"
)

// userKey returns the directory key for a user's routing cache entry.
func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
