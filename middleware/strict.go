package middleware

import (
	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
)

// RequireActive rejects suspended and disabled accounts.
func RequireActive() Requirement {
	return func(id storeauth.Identity) error {
		switch id.Profile.Status {
		case account.Active:
			return nil
		case account.Disabled:
			return storeauth.ErrAccountDisabled
		default:
			return storeauth.ErrPermissionDenied
		}
	}
}

// RequireVerified rejects accounts whose email is not verified.
func RequireVerified() Requirement {
	return func(id storeauth.Identity) error {
		if !id.Profile.EmailVerified {
			return storeauth.ErrEmailNotVerified
		}
		return nil
	}
}

// RequireRole admits only the listed roles.
func RequireRole(roles ...account.Role) Requirement {
	return func(id storeauth.Identity) error {
		for _, role := range roles {
			if id.Profile.Role == role {
				return nil
			}
		}
		return storeauth.ErrPermissionDenied
	}
}
