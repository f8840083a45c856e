package storeauth

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

func TestSuspendedAccountCannotSignIn(t *testing.T) {
	env := newTestEnv(t)
	id := env.signUp(t, "closed@example.com")
	if err := env.repo.UpdateStatus(context.Background(), id, account.Suspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	res, err := env.engine.SignIn(context.Background(), SignInRequest{Email: "closed@example.com", Password: testPassword})
	requireKind(t, err, ErrAccountClosed)
	if res != nil {
		t.Fatal("expected no session for suspended account")
	}
	if KindOf(err).HTTPStatus() != 400 {
		t.Fatalf("status = %d", KindOf(err).HTTPStatus())
	}
}

func TestDisabledAccountCannotSignIn(t *testing.T) {
	env := newTestEnv(t)
	id := env.signUp(t, "locked@example.com")
	if err := env.repo.UpdateStatus(context.Background(), id, account.Disabled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	_, err := env.engine.SignIn(context.Background(), SignInRequest{Email: "locked@example.com", Password: testPassword})
	requireKind(t, err, ErrAccountLocked)
}

func TestDisactivateRevokesSessionsAndReactivationRestores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.signUp(t, "eve@example.com")
	first := env.signIn(t, "eve@example.com")
	env.signIn(t, "eve@example.com")

	if err := env.engine.Disactivate(ctx, id); err != nil {
		t.Fatalf("Disactivate: %v", err)
	}
	if env.snapshot(t, id).Status != account.Suspended {
		t.Fatal("expected Suspended")
	}
	ident, err := env.engine.ResolveIdentity(ctx, first.Session.Cookie)
	if err != nil || ident.Authenticated() || !ident.ClearCookie {
		t.Fatalf("expected revoked session, got %+v, %v", ident, err)
	}

	if err := env.engine.RequestReactivation(ctx, "eve@example.com"); err != nil {
		t.Fatalf("RequestReactivation: %v", err)
	}
	token := env.notifier.lastToken(t, "reactivate")
	if err := env.engine.ReActivateAccount(ctx, token); err != nil {
		t.Fatalf("ReActivateAccount: %v", err)
	}
	if env.snapshot(t, id).Status != account.Active {
		t.Fatal("expected Active after reactivation")
	}
	requireKind(t, env.engine.ReActivateAccount(ctx, token), ErrReactivationTokenExpired)

	env.signIn(t, "eve@example.com")
}

func TestRequestReactivationByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.signUp(t, "frank@example.com")

	requireKind(t, env.engine.RequestReactivation(ctx, "frank@example.com"), ErrAccountActive)
	requireKind(t, env.engine.RequestReactivation(ctx, "ghost@example.com"), ErrInvalidEmail)

	if err := env.repo.UpdateStatus(ctx, id, account.Disabled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	requireKind(t, env.engine.RequestReactivation(ctx, "frank@example.com"), ErrAccountLocked)
	if env.notifier.count("reactivate") != 0 {
		t.Fatal("expected no reactivation email")
	}
}

func TestReActivateRefusesDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.signUp(t, "gina@example.com")
	if err := env.engine.Disactivate(ctx, id); err != nil {
		t.Fatalf("Disactivate: %v", err)
	}
	if err := env.engine.RequestReactivation(ctx, "gina@example.com"); err != nil {
		t.Fatalf("RequestReactivation: %v", err)
	}
	token := env.notifier.lastToken(t, "reactivate")

	if err := env.engine.SetStatus(ctx, account.RoleManager, id, account.Disabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	requireKind(t, env.engine.ReActivateAccount(ctx, token), ErrAccountLocked)
	if env.snapshot(t, id).Status != account.Disabled {
		t.Fatal("expected account to stay Disabled")
	}
}

func TestReactivationTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.signUp(t, "hal@example.com")
	if err := env.engine.Disactivate(ctx, id); err != nil {
		t.Fatalf("Disactivate: %v", err)
	}
	if err := env.engine.RequestReactivation(ctx, "hal@example.com"); err != nil {
		t.Fatalf("RequestReactivation: %v", err)
	}
	token := env.notifier.lastToken(t, "reactivate")

	env.clock.Advance(env.engine.config.ActionTokens.ReActivate + 2*time.Second)
	requireKind(t, env.engine.ReActivateAccount(ctx, token), ErrReactivationTokenExpired)
}

func TestSetStatusRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.signUp(t, "ivy@example.com")
	session := env.signIn(t, "ivy@example.com")

	for _, role := range []account.Role{account.RoleCustomer, account.RoleSaler, account.RoleBloger} {
		requireKind(t, env.engine.SetStatus(ctx, role, id, account.Disabled), ErrPermissionDenied)
	}
	requireKind(t, env.engine.SetStatus(ctx, account.RoleManager, id, account.Status(9)), ErrInvalidStatus)

	if err := env.engine.SetStatus(ctx, account.RoleManager, id, account.Disabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	ident, _ := env.engine.ResolveIdentity(ctx, session.Session.Cookie)
	if ident.Authenticated() {
		t.Fatal("expected sessions to be revoked on Disabled")
	}

	if err := env.engine.SetStatus(ctx, account.RoleManager, id, account.Active); err != nil {
		t.Fatalf("SetStatus Active: %v", err)
	}
	env.signIn(t, "ivy@example.com")
}
