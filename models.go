package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's role
type UserRole = string

const (
	// RoleUser is the default role assigned at registration
	RoleUser UserRole = "user"
	// RoleAdmin is an administrative role
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks the role against the known set
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is the account model. Password material and pending action tokens are
// persisted but never serialized to clients.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name         string    `bun:"name,notnull" json:"name,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Role         UserRole  `bun:"user_role,notnull" json:"role,omitempty"`
	IsVerified   bool      `bun:"is_verified" json:"is_verified"`

	// VerificationToken is present only while email verification is pending.
	VerificationToken *string `bun:"verification_token,nullzero" json:"-"`

	// PasswordResetToken and PasswordResetExpiry are set and cleared together.
	PasswordResetToken  *string    `bun:"password_reset_token,nullzero" json:"-"`
	PasswordResetExpiry *time.Time `bun:"password_reset_expiry,nullzero" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPendingReset reports whether a reset token exists and is still valid at
// the given instant.
func (u *User) HasPendingReset(now time.Time) bool {
	if u == nil || u.PasswordResetToken == nil || u.PasswordResetExpiry == nil {
		return false
	}
	return now.Before(*u.PasswordResetExpiry)
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}
}

var _ Identity = (*userIdentity)(nil)

// userIdentity is the Identity projection of a stored User
type userIdentity struct {
	id    string
	name  string
	email string
	role  string
}

func (i userIdentity) ID() string    { return i.id }
func (i userIdentity) Name() string  { return i.name }
func (i userIdentity) Email() string { return i.email }
func (i userIdentity) Role() string  { return i.role }

// IdentityFromUser projects a stored record into the Identity contract.
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return nil
	}
	return userIdentity{
		id:    u.ID.String(),
		name:  u.Name,
		email: u.Email,
		role:  string(u.Role),
	}
}
