package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minPolicyLength = 8
	maxPolicyLength = 40
	policySpecials  = "@$!%*?&"
)

// ErrPolicy is wrapped by every [ValidatePolicy] failure.
var ErrPolicy = errors.New("password policy violation")

// ValidatePolicy enforces the account password rules: 8 to 40 characters,
// at least one lowercase letter, one uppercase letter, one digit and one of
// @$!%*?&, and no characters outside that set.
func ValidatePolicy(plaintext string) error {
	n := utf8.RuneCountInString(plaintext)
	if n < minPolicyLength {
		return fmt.Errorf("%w: Password field is too short", ErrPolicy)
	}
	if n > maxPolicyLength {
		return fmt.Errorf("%w: Password field can not be longer than %d characters", ErrPolicy, maxPolicyLength)
	}

	var lower, upper, digit, special bool
	for _, r := range plaintext {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(policySpecials, r):
			special = true
		default:
			return fmt.Errorf("%w: Password field contains an unsupported character", ErrPolicy)
		}
	}

	if !lower || !upper || !digit || !special {
		return fmt.Errorf("%w: Password field must include: letters, numbers and special characters", ErrPolicy)
	}
	return nil
}

// PolicyMessage returns the user-facing part of a policy error.
func PolicyMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && errors.Is(err, ErrPolicy) {
		return msg[i+2:]
	}
	return msg
}
