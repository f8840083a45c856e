package storeauth

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/storeauth/password"
)

const (
	maxEmailLength    = 254
	maxUsernameLength = 50
	maxPictureLength  = 2048
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail accepts a bare address only, no display name.
func validateEmail(email string) error {
	if email == "" {
		return validationError("Email field is required")
	}
	if len(email) > maxEmailLength {
		return validationError("Email field is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return validationError("Email field is invalid")
	}
	return nil
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return validationError("Username field is required")
	}
	if n > maxUsernameLength {
		return validationError("Username field is too long")
	}
	return nil
}

// validatePicture accepts an empty value or an absolute http(s) URL.
func validatePicture(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxPictureLength {
		return validationError("Picture field is too long")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError("Picture field must be an http or https URL")
	}
	return nil
}

func validatePassword(plaintext string) error {
	if plaintext == "" {
		return validationError("Password field is required")
	}
	if err := password.ValidatePolicy(plaintext); err != nil {
		return &Error{Kind: KindValidation, Message: password.PolicyMessage(err), Err: err}
	}
	return nil
}
