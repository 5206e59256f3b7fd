package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a local identity. PasswordHash is nil for accounts
// created through federated login.
type Account struct {
	ID              uuid.UUID
	Email           string
	Username        *string
	Name            string
	Avatar          *string
	PasswordHash    *string
	ExternalSubject *string

	RecoveryCode          *string
	RecoveryCodeExpiresAt *time.Time

	// Email verification is declared but not enforced by any transition.
	VerificationToken          *string
	VerificationTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword returns true if the account can log in with a local password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// ActiveRecoveryCode returns the stored recovery code if it has not expired at now.
// An expired code is reported as absent.
func (a *Account) ActiveRecoveryCode(now time.Time) (string, bool) {
	if a.RecoveryCode == nil || *a.RecoveryCode == "" || a.RecoveryCodeExpiresAt == nil {
		return "", false
	}
	if !now.Before(*a.RecoveryCodeExpiresAt) {
		return "", false
	}
	return *a.RecoveryCode, true
}

// Profile returns the public view of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		Name:      a.Name,
		Avatar:    a.Avatar,
		Federated: a.ExternalSubject != nil,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Profile is the account as exposed to its owner. It never carries credentials
// or recovery state.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  *string   `json:"username,omitempty"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar,omitempty"`
	Federated bool      `json:"federated"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountUpdate is a partial update. Nil fields are left unchanged.
type AccountUpdate struct {
	Email           *string
	Username        *string
	Name            *string
	Avatar          *string
	PasswordHash    *string
	ExternalSubject *string

	RecoveryCode          *string
	RecoveryCodeExpiresAt *time.Time
}

// IsEmpty reports whether the update would change nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.Email == nil && u.Username == nil && u.Name == nil && u.Avatar == nil &&
		u.PasswordHash == nil && u.ExternalSubject == nil &&
		u.RecoveryCode == nil && u.RecoveryCodeExpiresAt == nil
}

// Apply copies the non-nil fields of u onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.Username != nil {
		a.Username = u.Username
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Avatar != nil {
		a.Avatar = u.Avatar
	}
	if u.PasswordHash != nil {
		a.PasswordHash = u.PasswordHash
	}
	if u.ExternalSubject != nil {
		a.ExternalSubject = u.ExternalSubject
	}
	if u.RecoveryCode != nil {
		a.RecoveryCode = u.RecoveryCode
	}
	if u.RecoveryCodeExpiresAt != nil {
		a.RecoveryCodeExpiresAt = u.RecoveryCodeExpiresAt
	}
}

// ExternalIdentity is a claim verified by an identity provider.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Avatar        string
}

// Identity provider constants
const (
	ProviderGoogle = "google"
)

// AuthState is the authentication status of a request. It is derived per
// request and never stored.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAuthenticated
	StateRecoveryInProgress
)

func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRecoveryInProgress:
		return "recovery_in_progress"
	default:
		return "unauthenticated"
	}
}
