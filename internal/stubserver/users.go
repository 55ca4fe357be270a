package stubserver

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/tenants"
)

// User is a stub backend account.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	Tenant       tenants.Tenant
}

// Session returns the user's wire identity.
func (u User) Session() sessions.User {
	return sessions.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// UserRepo is an in-memory user table keyed by tenant schema and
// email.
type UserRepo struct {
	mu    sync.RWMutex
	users map[string]map[string]User // tenant schema -> email -> user
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]map[string]User)}
}

// Upsert stores a user under its tenant.
func (r *UserRepo) Upsert(user User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schema := user.Tenant.SchemaName
	if _, ok := r.users[schema]; !ok {
		r.users[schema] = make(map[string]User)
	}
	r.users[schema][user.Email] = user
}

// GetByEmail finds a user within a tenant.
func (r *UserRepo) GetByEmail(tenantSchema, email string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenantUsers, ok := r.users[tenantSchema]
	if !ok {
		return User{}, false
	}
	user, ok := tenantUsers[email]
	return user, ok
}

// CheckPasswordHash compares a clear-text password with its bcrypt
// hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword produces a bcrypt hash for seeding.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SeedUsers installs the development accounts.
func SeedUsers(repo *UserRepo) error {
	acme := tenants.Tenant{
		ID:         "t-acme",
		SchemaName: "acme",
		Slug:       "acme",
		Name:       "Acme Facilities",
		Features:   []string{"workorders", "ai-assistant"},
	}
	northwind := tenants.Tenant{
		ID:         "t-northwind",
		SchemaName: "northwind",
		Slug:       "northwind",
		Name:       "Northwind Plant Services",
		Features:   []string{"workorders"},
	}

	seeds := []struct {
		user     User
		password string
	}{
		{User{ID: "u-1", Email: "tech@acme.example", Name: "Taylor Tech", Role: "technician", Tenant: acme}, "password1"},
		{User{ID: "u-2", Email: "admin@acme.example", Name: "Alex Admin", Role: "admin", Tenant: acme}, "password2"},
		{User{ID: "u-3", Email: "ops@northwind.example", Name: "Nour Ops", Role: "manager", Tenant: northwind}, "password3"},
	}
	for _, seed := range seeds {
		hash, err := HashPassword(seed.password)
		if err != nil {
			return err
		}
		seed.user.PasswordHash = hash
		user := seed.user
		user.Tenant.Role = user.Role
		repo.Upsert(user)
	}
	return nil
}
