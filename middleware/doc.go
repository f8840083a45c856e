// Package middleware adapts storeauth session cookies to net/http.
//
// # Middleware
//
//   - [Identify] resolves the session cookie on every request and stores the
//     resulting [storeauth.Identity] in the request context.
//   - [Guard] rejects requests whose identity does not meet a list of
//     [Requirement] values.
//   - [RequireActive], [RequireVerified] and [RequireRole] are the stock
//     requirements.
//
// This package translates HTTP semantics into Engine calls. Authentication
// decisions stay in storeauth.Engine.ResolveIdentity.
package middleware
