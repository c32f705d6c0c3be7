package service

import (
	"strings"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// UserService manages the app_users collection, sessions and the
// permission model. The admin account is a hardcoded sentinel: it is
// recreated on boot if missing, can never be deleted, and bypasses all
// permission checks.
//
// Passwords are bcrypt-hashed. Records restored from old backups may
// still hold plaintext; those authenticate by direct comparison and are
// re-hashed in place on first successful login, so the upgrade rides
// along with normal use.
type UserService struct {
	kv        port.KeyValue
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewUserService creates the user service.
func NewUserService(kv port.KeyValue, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *UserService {
	return &UserService{
		kv:        kv,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

func (u *UserService) load() ([]domain.StoredUser, error) {
	var users []domain.StoredUser
	if _, err := u.kv.GetJSON(keyAppUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (u *UserService) store(users []domain.StoredUser) error {
	return u.kv.SetJSON(keyAppUsers, users)
}

// EnsureAdmin recreates the admin sentinel if the collection lacks it.
// Called once at boot, before the server starts accepting requests.
func (u *UserService) EnsureAdmin(initialPassword string) error {
	users, err := u.load()
	if err != nil {
		return err
	}
	for _, usr := range users {
		if usr.Username == domain.AdminUsername {
			return nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(initialPassword), bcryptCost)
	if err != nil {
		return err
	}
	users = append(users, domain.StoredUser{
		Username:    domain.AdminUsername,
		Password:    string(hash),
		Role:        domain.RoleAdmin,
		Permissions: nil,
	})
	if err := u.store(users); err != nil {
		return err
	}
	u.logger.Info("users: admin account created")
	return nil
}

// Create adds a user. Usernames are unique (natural key, also the sync
// merge key for this collection).
func (u *UserService) Create(username, password, role string, permissions []string) (*domain.StoredUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "required"}
	}
	if password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "required"}
	}
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return nil, &domain.ErrValidation{Field: "role", Message: "must be admin or user"}
	}

	users, err := u.load()
	if err != nil {
		return nil, err
	}
	for _, usr := range users {
		if usr.Username == username {
			return nil, &domain.ErrConflict{Message: "username already exists: " + username}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	user := domain.StoredUser{
		Username:    username,
		Password:    string(hash),
		Role:        role,
		Permissions: permissions,
	}
	users = append(users, user)
	if err := u.store(users); err != nil {
		return nil, err
	}

	u.logger.Info("users: created", zap.String("username", username), zap.String("role", role))
	redacted := user.Redacted()
	return &redacted, nil
}

// Update changes a user's role, permissions and optionally password.
// The admin sentinel's role cannot be downgraded.
func (u *UserService) Update(username, password, role string, permissions []string) (*domain.StoredUser, error) {
	if username == domain.AdminUsername && role != "" && role != domain.RoleAdmin {
		return nil, &domain.ErrForbidden{Action: "downgrade admin role"}
	}

	users, err := u.load()
	if err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].Username != username {
			continue
		}
		if role != "" {
			users[i].Role = role
		}
		if permissions != nil {
			users[i].Permissions = permissions
		}
		if password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
			if err != nil {
				return nil, err
			}
			users[i].Password = string(hash)
		}
		if err := u.store(users); err != nil {
			return nil, err
		}
		redacted := users[i].Redacted()
		return &redacted, nil
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: username}
}

// Delete removes a user. The admin sentinel is never deletable.
func (u *UserService) Delete(username string) error {
	if username == domain.AdminUsername {
		return &domain.ErrForbidden{Action: "delete admin user"}
	}

	users, err := u.load()
	if err != nil {
		return err
	}
	kept := users[:0]
	for _, usr := range users {
		if usr.Username != username {
			kept = append(kept, usr)
		}
	}
	if len(kept) == len(users) {
		return &domain.ErrNotFound{Resource: "user", ID: username}
	}
	return u.store(kept)
}

// List returns all users with credentials redacted.
func (u *UserService) List() ([]domain.StoredUser, error) {
	users, err := u.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredUser, 0, len(users))
	for _, usr := range users {
		out = append(out, usr.Redacted())
	}
	return out, nil
}

// Get returns one user with credentials redacted.
func (u *UserService) Get(username string) (*domain.StoredUser, error) {
	users, err := u.load()
	if err != nil {
		return nil, err
	}
	for _, usr := range users {
		if usr.Username == username {
			redacted := usr.Redacted()
			return &redacted, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: username}
}

// Authenticate checks credentials and returns a signed access token.
// The authenticated username is tracked under current_user, matching
// the original app's session key.
func (u *UserService) Authenticate(username, password string) (string, *domain.StoredUser, error) {
	users, err := u.load()
	if err != nil {
		return "", nil, err
	}

	for i := range users {
		if users[i].Username != username {
			continue
		}
		if err := u.verifyPassword(users, i, password); err != nil {
			u.logger.Warn("users: failed login", zap.String("username", username))
			return "", nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
		}

		token, err := u.issueToken(users[i])
		if err != nil {
			return "", nil, err
		}
		if err := u.kv.Set(keyCurrentUser, []byte(username)); err != nil {
			return "", nil, err
		}

		u.logger.Info("users: login", zap.String("username", username))
		redacted := users[i].Redacted()
		return token, &redacted, nil
	}
	return "", nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
}

// verifyPassword handles both bcrypt hashes and legacy plaintext
// records, upgrading the latter in place on success.
func (u *UserService) verifyPassword(users []domain.StoredUser, i int, password string) error {
	stored := users[i].Password
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	}

	// Legacy plaintext record (restored from an old backup).
	if stored != password {
		return &domain.ErrUnauthorized{}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err == nil {
		users[i].Password = string(hash)
		if err := u.store(users); err != nil {
			u.logger.Warn("users: failed to persist password upgrade",
				zap.String("username", users[i].Username),
				zap.Error(err),
			)
		} else {
			u.logger.Info("users: upgraded legacy password",
				zap.String("username", users[i].Username),
			)
		}
	}
	return nil
}

// Claims are the JWT claims issued at login.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (u *UserService) issueToken(user domain.StoredUser) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.jwtSecret)
}

// ValidateToken parses and verifies an access token.
func (u *UserService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, &domain.ErrUnauthorized{Message: "unexpected signing method"}
		}
		return u.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token claims"}
	}
	return claims, nil
}

// HasPermission reports whether a user may perform an action. Admins
// bypass the check entirely.
func (u *UserService) HasPermission(username, permission string) (bool, error) {
	users, err := u.load()
	if err != nil {
		return false, err
	}
	for _, usr := range users {
		if usr.Username != username {
			continue
		}
		if usr.Role == domain.RoleAdmin {
			return true, nil
		}
		for _, p := range usr.Permissions {
			if p == permission {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}
