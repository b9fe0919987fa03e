package core

import (
	"context"
	"errors"
	"time"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

var (
	// ErrInvalidCredentials is returned when email/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when the username or email is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidInput is returned for missing registration fields.
	ErrInvalidInput = errors.New("username, email and password are required")
	// ErrUserNotFound is returned by repositories when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrIncorrectPassword is returned when the current password does not match.
	ErrIncorrectPassword = errors.New("incorrect old password")
	// ErrSameUsername is returned when a rename would not change anything.
	ErrSameUsername = errors.New("new username is the same as the old username")
)

// AuthService defines authentication behaviour of the login collaborator.
type AuthService interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
	Register(ctx context.Context, username, email, password string) (User, error)
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	ChangeUsername(ctx context.Context, userID int64, newUsername string) error
}
