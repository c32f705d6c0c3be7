package service_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func newUserService(kv *memKV) *service.UserService {
	return service.NewUserService(kv, "test-secret", time.Hour, zap.NewNop())
}

func TestUsers_EnsureAdmin(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	if err := svc.EnsureAdmin("boot-password"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	admin, err := svc.Get(domain.AdminUsername)
	if err != nil {
		t.Fatalf("expected admin to exist, got %v", err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Errorf("expected admin role, got %s", admin.Role)
	}

	// Second call is a no-op, not a duplicate.
	if err := svc.EnsureAdmin("other-password"); err != nil {
		t.Fatal(err)
	}
	users, err := svc.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user after repeated EnsureAdmin, got %d", len(users))
	}
}

func TestUsers_AdminNeverDeletable(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	if err := svc.EnsureAdmin("pw"); err != nil {
		t.Fatal(err)
	}

	var forbidden *domain.ErrForbidden
	if err := svc.Delete(domain.AdminUsername); !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := svc.Get(domain.AdminUsername); err != nil {
		t.Errorf("admin must still exist, got %v", err)
	}
}

func TestUsers_AdminRoleNotDowngradable(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)
	if err := svc.EnsureAdmin("pw"); err != nil {
		t.Fatal(err)
	}

	var forbidden *domain.ErrForbidden
	if _, err := svc.Update(domain.AdminUsername, "", domain.RoleUser, nil); !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUsers_AuthenticateIssuesValidToken(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	if _, err := svc.Create("maria", "segredo123", domain.RoleUser, []string{"cash"}); err != nil {
		t.Fatal(err)
	}

	token, user, err := svc.Authenticate("maria", "segredo123")
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if user.Password != "" {
		t.Error("authenticated user must be redacted")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != "maria" || claims.Role != domain.RoleUser {
		t.Errorf("unexpected claims: %+v", claims)
	}

	var unauthorized *domain.ErrUnauthorized
	if _, _, err := svc.Authenticate("maria", "wrong"); !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUsers_LegacyPlaintextUpgradedOnLogin(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	// A record restored from an old backup: plaintext password.
	if err := kv.SetJSON("app_users", []domain.StoredUser{
		{Username: "legado", Password: "senha-antiga", Role: domain.RoleUser},
	}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Authenticate("legado", "senha-antiga"); err != nil {
		t.Fatalf("expected plaintext login to succeed, got %v", err)
	}

	var users []domain.StoredUser
	if _, err := kv.GetJSON("app_users", &users); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Errorf("expected password re-hashed in place, got %q", users[0].Password)
	}

	// The upgraded hash still authenticates.
	if _, _, err := svc.Authenticate("legado", "senha-antiga"); err != nil {
		t.Fatalf("expected login after upgrade to succeed, got %v", err)
	}
}

func TestUsers_DuplicateUsername(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	if _, err := svc.Create("maria", "pw1", domain.RoleUser, nil); err != nil {
		t.Fatal(err)
	}
	var conflict *domain.ErrConflict
	if _, err := svc.Create("maria", "pw2", domain.RoleUser, nil); !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUsers_HasPermission(t *testing.T) {
	kv := newMemKV()
	svc := newUserService(kv)

	if err := svc.EnsureAdmin("pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create("maria", "pw", domain.RoleUser, []string{"cash"}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		username, permission string
		want                 bool
	}{
		{"admin", "anything", true}, // admin bypasses checks
		{"maria", "cash", true},
		{"maria", "orders", false},
		{"ghost", "cash", false},
	}
	for _, tc := range cases {
		got, err := svc.HasPermission(tc.username, tc.permission)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tc.username, tc.permission, got, tc.want)
		}
	}
}
