package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccessState is the authorization state of the caller.
type AccessState int

const (
	Unauthenticated AccessState = iota
	Pending
	Authorized
	Admin
)

func (s AccessState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	case Admin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

func (s AccessState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AccessState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unauthenticated":
		*s = Unauthenticated
	case "pending":
		*s = Pending
	case "authorized":
		*s = Authorized
	case "admin":
		*s = Admin
	default:
		return fmt.Errorf("unknown access state %q", b)
	}
	return nil
}

// Permitted reports whether the state may use the clinical modules.
// Admin always satisfies whatever Authorized satisfies.
func (s AccessState) Permitted() bool {
	return s == Authorized || s == Admin
}

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

type Profile struct {
	UserID          uuid.UUID `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	RegistrationID  string    `json:"registration_id"`
	BusinessContact string    `json:"business_contact"`
	Signature       string    `json:"signature"`
	IsAuthorized    bool      `json:"is_authorized"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	DisplayName     string `json:"display_name"`
	RegistrationID  string `json:"registration_id"`
	BusinessContact string `json:"business_contact"`
	Signature       string `json:"signature"`
}

// Member is a user row as the admin listing sees it.
type Member struct {
	Profile
	Email string      `json:"email"`
	State AccessState `json:"state"`
	// Locked is set for admin identities, whose flag cannot be toggled.
	Locked bool `json:"locked"`
}

type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Principal is the resolved caller of an authenticated request.
type Principal struct {
	User      User        `json:"user"`
	Profile   Profile     `json:"profile"`
	SessionID uuid.UUID   `json:"-"`
	State     AccessState `json:"state"`
}

type TokenPurpose string

const (
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeConfirmEmail  TokenPurpose = "confirm_email"
)

type Token struct {
	Token     string
	UserID    uuid.UUID
	Purpose   TokenPurpose
	ExpiresAt time.Time
}

type EventType string

const (
	EventSignedIn             EventType = "signed_in"
	EventSignedOut            EventType = "signed_out"
	EventAuthorizationChanged EventType = "authorization_changed"
	EventProfileUpdated       EventType = "profile_updated"
	EventPasswordChanged      EventType = "password_changed"
)

// Event is one auth-state change pushed to the affected user's subscribers.
type Event struct {
	Type   EventType   `json:"type"`
	UserID uuid.UUID   `json:"user_id"`
	State  AccessState `json:"state"`
	At     time.Time   `json:"at"`
}

// SignInResult is returned by a successful sign-in.
type SignInResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}
