package auth

import (
	"context"
	"testing"
)

func TestSeedAdmin_CreatesOnEmptyDB(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	password, err := SeedAdmin(ctx, repo, nil)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if len(password) != seedPasswordBytes*2 {
		t.Fatalf("password length = %d, want %d", len(password), seedPasswordBytes*2)
	}

	admin, err := repo.GetByUsername(ctx, SeedAdminUsername)
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", admin.Role, RoleAdmin)
	}
	if !admin.IsActive {
		t.Error("seed admin should be active")
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createUser(t, repo, "existing", RoleOperator)

	password, err := SeedAdmin(ctx, repo, nil)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should return empty password when users exist")
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
