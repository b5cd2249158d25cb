// Package identity turns a bearer credential into the user behind it.
package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"vhrealtime/service/storage"
	"vhrealtime/tools/errs"
	"vhrealtime/tools/security"
)

// Identity is what the realtime services know about a connected user.
type Identity struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"user_name"`
	Role   string `json:"role"`
}

// Verifier checks tokens and resolves their subject. Every failure is reported as
// errs.ErrAuthenticationRejected; the underlying cause is only logged.
type Verifier struct {
	opts  security.Options
	users storage.UserStore
	log   *zap.Logger
}

func NewVerifier(opts security.Options, users storage.UserStore, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{opts: opts, users: users, log: log.Named("identity")}
}

func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := security.Verify(v.opts, token)
	if err != nil {
		return v.reject("token", err)
	}
	uid, err := claims.UserID()
	if err != nil {
		return v.reject("claims", err)
	}
	u, err := v.users.FindUser(ctx, uid)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			v.log.Warn("user lookup failed", zap.Int64("user_id", uid), zap.Error(err))
		}
		return v.reject("user", err)
	}
	return Identity{UserID: u.ID, Name: u.DisplayName(), Role: u.Role}, nil
}

func (v *Verifier) reject(stage string, cause error) (Identity, error) {
	v.log.Debug("credential rejected", zap.String("stage", stage), zap.Error(cause))
	return Identity{}, errs.ErrAuthenticationRejected.Wrap()
}
