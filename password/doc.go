// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) still verify. [Hasher.NeedsUpgrade]
// reports true for them so the caller can re-hash on the next successful
// sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other storeauth package.
//   - Log plaintext passwords.
package password
