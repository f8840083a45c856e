package mfa

import (
	"testing"
)

func TestNewBackupCodes(t *testing.T) {
	codes, err := NewBackupCodes(BackupCodeCount)
	if err != nil {
		t.Fatalf("NewBackupCodes: %v", err)
	}
	if len(codes) != BackupCodeCount {
		t.Fatalf("got %d codes", len(codes))
	}

	seen := map[string]bool{}
	for _, c := range codes {
		if len(c) != BackupCodeLength+1 || c[BackupCodeLength/2] != '-' {
			t.Fatalf("unexpected format %q", c)
		}
		if !LooksLikeBackupCode(c) {
			t.Fatalf("generated code %q not recognized", c)
		}
		if IsTOTPCode(c) {
			t.Fatalf("backup code %q mistaken for totp", c)
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = true
	}
}

func TestHashBackupCodeCanonicalizes(t *testing.T) {
	a := HashBackupCode("u-1", "ABCDE-FGHJK")
	b := HashBackupCode("u-1", " abcde fghjk ")
	if a != b {
		t.Fatal("expected canonical inputs to hash identically")
	}
	if a == HashBackupCode("u-2", "ABCDE-FGHJK") {
		t.Fatal("expected hash to be bound to user id")
	}
	if len(a) != 64 {
		t.Fatalf("unexpected digest length %d", len(a))
	}
}

func TestLooksLikeBackupCode(t *testing.T) {
	if LooksLikeBackupCode("123456") {
		t.Fatal("totp code classified as backup code")
	}
	if LooksLikeBackupCode("ABCDE-FGHJ0") {
		t.Fatal("0 is not in the alphabet")
	}
	if !LooksLikeBackupCode("abcde-fghjk") {
		t.Fatal("expected lower-case input to be accepted")
	}
}
