package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
	"strings"
)

// BootstrapUser creates an initial user when the users table is empty.
// It is idempotent: if any user exists, it does nothing.
func BootstrapUser(ctx context.Context, auth AuthService, repo UserRepository, cfg Config) error {
	email := strings.TrimSpace(cfg.BootstrapUser)
	if email == "" {
		return nil
	}

	has, err := repo.HasAny(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(24)
	if err != nil {
		return err
	}
	username, _, _ := strings.Cut(email, "@")
	if _, err := auth.Register(ctx, username, email, password); err != nil {
		return err
	}

	if cfg.BootstrapPasswordPath != "" {
		if err := os.WriteFile(cfg.BootstrapPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial user %s created; password written to %s", email, cfg.BootstrapPasswordPath)
	} else {
		log.Printf("initial user created email=%s password=%s", email, password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
