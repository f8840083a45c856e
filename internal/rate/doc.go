// Package rate implements fixed-window counters for authentication flows on
// top of cache.Client.
//
// # Window semantics
//
// A window opens on the first increment (INCR + PEXPIRE on Redis, an
// expiring go-cache counter in memory). Key prefixes:
//   - rl:si:  sign-in failures per email
//   - rl:sip: sign-in failures per client IP
//   - rl:rec: recovery and reactivation requests per email
//   - rl:ver: verification resends per user
//   - rl:mfa: MFA failures per user
package rate
