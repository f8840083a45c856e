package actiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type identifies what an action token may be used for.
type Type string

const (
	// EmailVerification confirms ownership of the account email.
	EmailVerification Type = "emailVerification"
	// RecoverAccount authorizes a password reset.
	RecoverAccount Type = "recoverAccount"
	// ReActivate re-enables a self-closed account.
	ReActivate Type = "reActivate"
)

// Valid reports whether t is a known token type.
func (t Type) Valid() bool {
	switch t {
	case EmailVerification, RecoverAccount, ReActivate:
		return true
	default:
		return false
	}
}

const minSecretBytes = 16

var (
	// ErrInvalid is returned by Verify for any token that must be treated as absent.
	ErrInvalid = errors.New("action token invalid")
	// ErrWeakSecret is returned by NewIssuer for short signing secrets.
	ErrWeakSecret = errors.New("action token secret must be at least 16 bytes")
)

// Claims is the signed payload of an action token.
type Claims struct {
	Type    Type   `json:"type"`
	Session string `json:"session"`
	jwt.RegisteredClaims
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used to stamp and validate tokens.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLeeway allows clock skew when checking exp.
func WithLeeway(d time.Duration) Option {
	return func(i *Issuer) {
		i.leeway = d
	}
}

// Issuer signs and verifies action tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewIssuer returns an HS256 Issuer.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}

	i := &Issuer{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.leeway < 0 || i.leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return i, nil
}

// Issue signs a token for session that stops verifying at expiresAt.
func (i *Issuer) Issue(typ Type, session string, expiresAt time.Time) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("unknown action token type %q", typ)
	}
	if session == "" {
		return "", errors.New("empty action token session")
	}

	claims := Claims{
		Type:    typ,
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature, algorithm, expiry and type of token. Every
// failure is reported as ErrInvalid so callers can treat it as a null result.
func (i *Issuer) Verify(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.leeway > 0 {
		options = append(options, jwt.WithLeeway(i.leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || !claims.Type.Valid() || claims.Session == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyType is Verify plus a check that the token was issued for want.
func (i *Issuer) VerifyType(token string, want Type) (*Claims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrInvalid
	}
	return claims, nil
}
