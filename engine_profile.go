package storeauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

// EditProfile updates the username and picture of userID and returns the
// refreshed profile. An empty request is a no-op.
func (e *Engine) EditProfile(ctx context.Context, userID string, req EditProfileRequest) (profile account.Profile, err error) {
	defer e.observe("edit_profile", time.Now(), &err)

	var upd account.ProfileUpdate
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if err := validateUsername(name); err != nil {
			return account.Profile{}, err
		}
		upd.Username = &name
	}
	if req.Picture != nil {
		pic := strings.TrimSpace(*req.Picture)
		if err := validatePicture(pic); err != nil {
			return account.Profile{}, err
		}
		upd.Picture = &pic
	}

	if upd.Username != nil || upd.Picture != nil {
		if err := e.accounts.UpdateProfile(ctx, userID, upd); err != nil {
			return account.Profile{}, e.storeError(err)
		}
		e.emitAudit(ctx, auditEventProfileUpdated, true, userID, "", nil, nil)
	}

	profile, err = e.accounts.ProfileByID(ctx, userID)
	if err != nil {
		return account.Profile{}, e.storeError(err)
	}
	return profile, nil
}
