package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdminUsername is the account created on an empty database.
const SeedAdminUsername = "admin"

// SeedAdmin creates an admin account on first boot if no users exist.
// The generated password is logged once and returned; it is empty when
// seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, logger Logger) (string, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     SeedAdminUsername,
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", SeedAdminUsername,
		"password", password,
		"action_required", "change this password with 'feederd user passwd'",
	)
	return password, nil
}
