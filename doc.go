// Package accounts reconciles identities owned by an external identity
// provider with internal profile records and runs the account deletion
// lifecycle.
//
// Token validation:
//   - TokenValidator verifies RS256 bearer tokens against the provider key set
//     (issuer, expiry and signature) and derives a Caller with admin and
//     developer flags from the groups claim.
//
// Membership:
//   - GroupReconciler pages through every provider user and writes only the
//     profile flags that differ. Per user failures are collected in a
//     SyncReport and never abort the run.
//   - MembershipMutator sets a single user's admin and developer groups,
//     issuing at most one provider call per group, then mirrors the flags.
//
// Lifecycle:
//   - LifecycleManager moves an account from live to soft deleted (provider
//     disable) to hard deleted (provider removal). Authorization is checked
//     before any provider call and deletion provenance is written once.
//   - Every mutation holds a per user Locker and writes through the
//     ProfileStore version check.
//
// Activity sinks:
//   - ActivitySink receives lifecycle, membership and sync events. Sinks run
//     best effort so logging or metrics never block an account change.
//
// HTTPController exposes the operations as actions posted to one route.
package accounts
