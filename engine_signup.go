package storeauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

// SignUp creates an Active, unverified CUSTOMER account with a password and
// sends an email verification link. No session is created.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (res *SignUpResult, err error) {
	defer e.observe("sign_up", time.Now(), &err)

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, withCause(ErrInternal, err)
	}

	snap, err := e.accounts.CreateUser(ctx, account.NewUser{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         account.RoleCustomer,
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			e.emitAudit(ctx, auditEventSignUp, false, "", "", ErrUserExists, nil)
			return nil, ErrUserExists
		}
		return nil, e.storeError(err)
	}

	token, err := e.issueActionToken(ctx, snap.ID, actiontoken.EmailVerification)
	if err != nil {
		return nil, err
	}
	// the account exists either way; the user can ask for a new link
	_ = e.deliver(ctx, "sign_up", func(ctx context.Context) error {
		return e.notifier.SendEmailVerification(ctx, email, e.link(pathConfirmEmail, token))
	})

	e.metrics.Inc(MetricSignUp)
	e.emitAudit(ctx, auditEventSignUp, true, snap.ID, "", nil, nil)

	return &SignUpResult{UserID: snap.ID, VerificationToken: token}, nil
}

const (
	pathConfirmEmail  = "/auth/confirm-email"
	pathResetPassword = "/auth/reset-password"
	pathReactivate    = "/auth/reactivate"
)
