package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	// BackupCodeAlphabet excludes look-alike characters.
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// BackupCodeCount is the number of codes issued per enrollment.
	BackupCodeCount = 10
	// BackupCodeLength is the canonical code length.
	BackupCodeLength = 10
)

// NewBackupCodes returns n formatted codes.
func NewBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("backup code count must be positive")
	}
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		raw, err := newBackupCode(BackupCodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, FormatBackupCode(raw))
	}
	return codes, nil
}

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode splits a canonical code in two halves.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips separators and upper-cases user input.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// HashBackupCode returns the stored digest of code for userID. Input is
// canonicalized first.
func HashBackupCode(userID, code string) string {
	canonical := CanonicalizeBackupCode(code)
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code for userID.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(userID, c)
	}
	return out
}

// LooksLikeBackupCode reports whether code could be a backup code.
func LooksLikeBackupCode(code string) bool {
	c := CanonicalizeBackupCode(code)
	if len(c) != BackupCodeLength {
		return false
	}
	for i := 0; i < len(c); i++ {
		if !strings.ContainsRune(BackupCodeAlphabet, rune(c[i])) {
			return false
		}
	}
	return true
}
