package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/actiontoken"
)

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repo := New()
	ctx := context.Background()

	snap, err := repo.CreateUser(ctx, account.NewUser{Email: "A@x.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if snap.Email != "a@x.com" || snap.Status != account.Active || snap.Role != account.RoleCustomer || !snap.HasPassword {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com"}); !errors.Is(err, account.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestConsumeActionTokenIsSingleUse(t *testing.T) {
	repo := New()
	ctx := context.Background()
	snap, _ := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com"})
	now := time.Now()

	tok := account.ActionToken{Type: actiontoken.RecoverAccount, Value: "v1", ExpiresAt: now.Add(time.Hour)}
	if err := repo.SaveActionToken(ctx, snap.ID, tok); err != nil {
		t.Fatalf("SaveActionToken: %v", err)
	}

	if _, err := repo.ConsumeActionToken(ctx, actiontoken.EmailVerification, "v1", now); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected type mismatch to miss, got %v", err)
	}
	id, err := repo.ConsumeActionToken(ctx, actiontoken.RecoverAccount, "v1", now)
	if err != nil || id != snap.ID {
		t.Fatalf("ConsumeActionToken = %q, %v", id, err)
	}
	if _, err := repo.ConsumeActionToken(ctx, actiontoken.RecoverAccount, "v1", now); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected replay to miss, got %v", err)
	}
	stored, _ := repo.ActionToken(ctx, snap.ID, actiontoken.RecoverAccount)
	if stored != nil {
		t.Fatalf("expected token cleared, got %+v", stored)
	}
}

func TestConsumeActionTokenRejectsExpired(t *testing.T) {
	repo := New()
	ctx := context.Background()
	snap, _ := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com"})
	now := time.Now()

	_ = repo.SaveActionToken(ctx, snap.ID, account.ActionToken{Type: actiontoken.ReActivate, Value: "v", ExpiresAt: now.Add(-time.Second)})
	if _, err := repo.ConsumeActionToken(ctx, actiontoken.ReActivate, "v", now); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected expired token to miss, got %v", err)
	}
}

func TestConsumeBackupCodeConcurrent(t *testing.T) {
	repo := New()
	ctx := context.Background()
	snap, _ := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com"})
	if err := repo.EnableMFA(ctx, account.MFASecret{UserID: snap.ID, Secret: "S", AvailableCodes: []string{"h1", "h2"}}); err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConsumeBackupCode(ctx, snap.ID, "h1")
			if err != nil {
				t.Errorf("ConsumeBackupCode: %v", err)
				return
			}
			if ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted.Load())
	}
	secret, _ := repo.MFASecret(ctx, snap.ID)
	if len(secret.AvailableCodes) != 1 || secret.AvailableCodes[0] != "h2" || len(secret.UsedCodes) != 1 {
		t.Fatalf("unexpected secret state %+v", secret)
	}
}

func TestOAuthLinks(t *testing.T) {
	repo := New()
	ctx := context.Background()
	snap, _ := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com"})

	link := account.OAuthLink{Provider: "google", ProviderID: "g-1", UserID: snap.ID, Email: "a@x.com"}
	if err := repo.CreateOAuthLink(ctx, link); err != nil {
		t.Fatalf("CreateOAuthLink: %v", err)
	}
	if err := repo.CreateOAuthLink(ctx, link); !errors.Is(err, account.ErrLinkExists) {
		t.Fatalf("expected ErrLinkExists, got %v", err)
	}

	profile, _ := repo.ProfileByID(ctx, snap.ID)
	if len(profile.Providers) != 1 || profile.HasPassword {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if err := repo.DeleteOAuthLink(ctx, "someone-else", "google", "g-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := repo.DeleteOAuthLink(ctx, snap.ID, "google", "g-1"); err != nil {
		t.Fatalf("DeleteOAuthLink: %v", err)
	}
	if _, err := repo.OAuthLink(ctx, "google", "g-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected link removed, got %v", err)
	}
}

func TestUpdateEmailResetsVerification(t *testing.T) {
	repo := New()
	ctx := context.Background()
	a, _ := repo.CreateUser(ctx, account.NewUser{Email: "a@x.com", EmailVerified: true})
	_, _ = repo.CreateUser(ctx, account.NewUser{Email: "b@x.com"})

	if err := repo.UpdateEmail(ctx, a.ID, "b@x.com"); !errors.Is(err, account.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if err := repo.UpdateEmail(ctx, a.ID, "c@x.com"); err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}
	snap, err := repo.SnapshotByEmail(ctx, "c@x.com")
	if err != nil || snap.EmailVerified {
		t.Fatalf("expected unverified new email, got %+v, %v", snap, err)
	}
	if _, err := repo.SnapshotByEmail(ctx, "a@x.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected old email released, got %v", err)
	}
}

func TestUpdateProfileIsPartial(t *testing.T) {
	repo := New()
	ctx := context.Background()
	a, _ := repo.CreateUser(ctx, account.NewUser{Email: "p@x.com", Username: "before", Picture: "https://img.test/1.png"})

	name := "after"
	if err := repo.UpdateProfile(ctx, a.ID, account.ProfileUpdate{Username: &name}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	p, err := repo.ProfileByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("ProfileByID: %v", err)
	}
	if p.Username != "after" || p.Picture != "https://img.test/1.png" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if err := repo.UpdateProfile(ctx, "missing", account.ProfileUpdate{Username: &name}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
