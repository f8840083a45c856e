// Package cookiecrypt encrypts the opaque session identifiers stored in
// cookies so the cookie value never exposes the internal session key.
//
// Output format:
//
//	hex(iv) "." hex(ciphertext || tag)
//
// The IV is 16 random bytes per call and AES-256-GCM authenticates the
// payload, so a value sealed under another key fails with [ErrDecryption]
// instead of decoding to garbage.
package cookiecrypt
