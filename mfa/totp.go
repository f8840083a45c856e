package mfa

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second
	// Digits is the TOTP code length.
	Digits = 6
	// Skew is the accepted step drift in either direction.
	Skew = 1

	secretSize = 20
	qrSize     = 200
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTP generates and validates RFC 6238 codes (SHA1, 6 digits, 30s).
type TOTP struct {
	Issuer string
}

func (t TOTP) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateKey builds a provisioning key for account. A non-empty
// existingSecret is reused so a re-scanned QR code keeps working.
func (t TOTP) GenerateKey(account, existingSecret string) (*otp.Key, error) {
	opts := totp.GenerateOpts{
		Issuer:      t.Issuer,
		AccountName: account,
		Period:      uint(Period / time.Second),
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	}
	if existingSecret != "" {
		raw, err := b32.DecodeString(existingSecret)
		if err != nil {
			return nil, fmt.Errorf("decode totp secret: %w", err)
		}
		opts.Secret = raw
	}
	return totp.Generate(opts)
}

// Validate reports whether code is a valid 6-digit code for secret at now,
// allowing one step of drift.
func (t TOTP) Validate(code, secret string, now time.Time) bool {
	if !IsTOTPCode(code) || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, t.validateOpts())
	return err == nil && ok
}

// Code returns the code for secret at now.
func (t TOTP) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now, t.validateOpts())
}

// IsTOTPCode reports whether code has the shape of a TOTP code.
func IsTOTPCode(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// QRCodeDataURL renders key as a PNG data URL for authenticator apps.
func QRCodeDataURL(key *otp.Key) (string, error) {
	if key == nil {
		return "", errors.New("nil totp key")
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
