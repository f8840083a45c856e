// Package mfa implements the TOTP and backup-code primitives behind
// multi-factor enrollment and sign-in verification.
//
// # Enrollment states
//
//	Unenrolled -> PendingSetup -> Enrolled
//
// A pending setup lives in the cache under a user-scoped key for a bounded
// time ([PendingStore]); enrolled secrets belong to the account repository.
// The orchestration of these states lives in the Engine.
//
// # Backup codes
//
// Codes are drawn from [BackupCodeAlphabet], shown to the user once in
// XXXXX-XXXXX form and stored only as [HashBackupCode] digests bound to the
// owning user id.
package mfa
