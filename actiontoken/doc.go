// Package actiontoken signs and verifies the short-lived, typed tokens carried
// by email verification, password recovery and reactivation links.
//
// A token only proves possession. The authoritative expiry is the random
// session value stored on the user record, so callers must still compare the
// verified claims against stored state before acting on them.
package actiontoken
