// Package session persists server-side session records in a TTL cache and
// encodes them in a compact versioned binary format.
//
// # Identifiers
//
// Session ids have the form "<userID>:<random>". The user prefix lets
// [Store.DeleteByPattern] revoke every device of one user with a single
// prefix scan; the random part is 16 bytes from crypto/rand.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Record] model. It does not decrypt
// cookies, load users or decide whether an account may hold a session; those
// responsibilities belong to the Engine.
package session
