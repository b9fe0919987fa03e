package core

import (
	"context"
	"time"
)

// LoginRequest is accepted as JSON or as a form post.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	// Expire is the lifetime in minutes: 0 default, -1 remember me.
	Expire int `json:"expire" form:"expire"`
}

// RegisterRequest is accepted as JSON or as a form post.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ChangePasswordRequest is the body of POST /api/v1/user/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" form:"old_password"`
	NewPassword string `json:"new_password" form:"new_password"`
}

// ChangeUsernameRequest is the body of POST /api/v1/user/change-username.
type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username" form:"new_username"`
}

// LoginResult mirrors the login API response.
type LoginResult struct {
	Token    string `json:"token"`
	ExpireAt string `json:"expire_at"`
}

// LoginFlow authenticates a visitor and writes the credential into the
// visitor's store before any navigation to a protected view.
type LoginFlow struct {
	Auth   AuthService
	Tokens *TokenIssuer
}

// Login stores {token, expire_at} on success.
func (f LoginFlow) Login(ctx context.Context, store Store, req LoginRequest) (LoginResult, error) {
	user, err := f.Auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}
	token, expireAt, err := f.Tokens.Issue(user.ID, req.Expire)
	if err != nil {
		return LoginResult{}, err
	}
	if store == nil {
		return LoginResult{}, ErrStorageUnavailable
	}
	if err := store.Set(ctx, token, expireAt); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpireAt: FormatExpireAt(expireAt)}, nil
}

// Register creates the account; it does not log the visitor in.
func (f LoginFlow) Register(ctx context.Context, req RegisterRequest) (User, error) {
	return f.Auth.Register(ctx, req.Username, req.Email, req.Password)
}

// expiresIn is used by the pages to show how long the session lasts.
func expiresIn(cred Credential, now time.Time) time.Duration {
	exp, ok := cred.Expiry()
	if !ok {
		return 0
	}
	return exp.Sub(now).Truncate(time.Second)
}
