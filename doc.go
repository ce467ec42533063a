// Package identity implements the identity and session-integrity core of an
// e-waste collection marketplace: role-gated registration approval, credential
// hashing and verification, brute-force login throttling, single-use password
// resets, and continuous reconciliation of a cached session against the
// authoritative profile store.
//
// Session model:
//   - The Manager holds one Session snapshot per instance. The snapshot is a
//     cache, never an authority: an administrator can deactivate or delete an
//     account out of band at any time, and Validate re-reads the persistent
//     record to detect that divergence without the user re-authenticating.
//   - Validate tears the session down synchronously on any divergence, so a
//     caller observing session state after the call never sees a stale
//     authenticated value.
//
// Persistence:
//   - Profiles and reset tokens are stored via Bun repositories. The rest of
//     the core programs against the CredentialStore interface, whose default
//     implementation wraps every call in a retry executor so transient store
//     faults stay invisible to callers until retries are exhausted.
//
// Injection points:
//   - Clock, sleep, random source, hasher, and logger are constructor-injected
//     so tests can substitute fakes and multiple instances can coexist without
//     shared global state.
package identity
