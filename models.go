package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultInvitations is the number of invitations a new user gets
	DefaultInvitations = 10
	// DefaultLocale is used when a user has not picked one
	DefaultLocale = "en"
	// DefaultTimezone is used when a user has not picked one
	DefaultTimezone = "UTC"
	// SerialRandomLength is the random suffix length of a session serial
	SerialRandomLength = 5
	// TokenLength is the length of invitation and password reset tokens
	TokenLength = 64
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                      int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Username                string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Password                string     `bun:"password,notnull" json:"-"`
	Email                   string     `bun:"email,notnull,unique" json:"email,omitempty"`
	IsActive                bool       `bun:"is_active,notnull" json:"is_active"`
	Locale                  string     `bun:"locale,notnull" json:"locale,omitempty"`
	Timezone                string     `bun:"timezone,notnull" json:"timezone,omitempty"`
	Invitations             int        `bun:"invitations,notnull" json:"invitations"`
	Serial                  string     `bun:"serial,notnull" json:"-"`
	JoinedAt                time.Time  `bun:"joined_at,notnull" json:"joined_at"`
	PasswordResetToken      *string    `bun:"password_reset_token,unique" json:"-"`
	PasswordResetExpiration *time.Time `bun:"password_reset_expiration" json:"-"`
}

// GenerateSerial returns a new session serial: the unix timestamp followed
// by SerialRandomLength random characters.
func GenerateSerial(now time.Time) (string, error) {
	suffix, err := GenerateToken(SerialRandomLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d%s", now.Unix(), suffix), nil
}

// RotateSerial assigns a fresh serial to the user
func (u *User) RotateSerial(now time.Time) error {
	serial, err := GenerateSerial(now)
	if err != nil {
		return err
	}
	u.Serial = serial
	return nil
}

// ClearPasswordReset drops both the reset token and its expiration
func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = nil
	u.PasswordResetExpiration = nil
}

// EnsureDefaults fills the columns that carry defaults in the schema
func (u *User) EnsureDefaults(now time.Time) error {
	if u.Locale == "" {
		u.Locale = DefaultLocale
	}
	if u.Timezone == "" {
		u.Timezone = DefaultTimezone
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	if u.Serial == "" {
		return u.RotateSerial(now)
	}
	return nil
}

// Invitation is a single use signup token minted by an owner
type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:inv"`

	ID         uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OwnerID    int64     `bun:"owner_id,notnull" json:"owner_id"`
	Owner      *User     `bun:"rel:belongs-to,join:owner_id=id" json:"owner,omitempty"`
	UserID     *int64    `bun:"user_id" json:"user_id,omitempty"`
	User       *User     `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token      string    `bun:"token,notnull,unique" json:"-"`
	Expiration time.Time `bun:"expiration,notnull" json:"expiration"`
}

// IsRedeemed reports whether a user signed up with this invitation
func (i *Invitation) IsRedeemed() bool {
	return i.UserID != nil
}

// IsRedeemableAt reports whether the invitation can still be used at now.
// Unlike password reset tokens the expiration instant itself is excluded.
func (i *Invitation) IsRedeemableAt(now time.Time) bool {
	return !i.IsRedeemed() && now.Before(i.Expiration)
}
