// Package storeauth is the session and credential lifecycle engine of the
// store backend: password and OAuth sign-in, cache-backed sessions behind an
// encrypted cookie, action tokens for email verification, recovery and
// reactivation, TOTP with backup codes, and account status transitions.
//
// An [Engine] is assembled with [New] and [Builder.Build] and is safe for
// concurrent use afterwards. The engine does not depend on HTTP; the
// httpapi package is a thin chi router over it.
//
// # Boundaries
//
//   - User data is reached only through account.Repository, which returns
//     narrow views (account.Snapshot, account.Profile).
//   - Sessions, pending MFA setups, OAuth state and rate counters live in a
//     cache.Client and are bound by TTL.
//   - Every user-facing failure is an [*Error] with a [Kind]; use [KindOf]
//     and [PublicMessage] at the transport edge.
//
// A Suspended or Disabled account never receives a session.
package storeauth
