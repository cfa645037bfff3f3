package users

import (
	"errors"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

// Role is the workflow role a user registered with.
type Role string

const (
	RoleReporter  Role = "Reporter"
	RoleAdmin     Role = "Admin"
	RoleValidator Role = "Validator"
)

// ErrNotFound is returned when no registration exists for a user id.
var ErrNotFound = errors.New("user not found")

// ErrMissingCredentials is returned when a user id or password is empty.
var ErrMissingCredentials = errors.New("user_id and password are required")

// ErrPasswordTooLong is returned when a password exceeds the 72 bytes bcrypt
// can hash.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// ErrInvalidRole is returned when registering with an unknown role.
var ErrInvalidRole = errors.New("role must be one of Reporter, Admin, Validator")

// ErrInvalidCredentials is returned when a password does not match.
var ErrInvalidCredentials = errors.New("invalid password")

// ErrUnrecognizedDevice is returned when a login comes from a device other
// than the one bound at registration.
var ErrUnrecognizedDevice = errors.New("unrecognized device, please register again")

// ParseRole validates s as a Role. An empty string means Reporter.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleReporter, nil
	case RoleReporter, RoleAdmin, RoleValidator:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// CanReview reports whether the role may append status updates to reports.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleValidator
}

// Payload keys of a Register block.
const (
	fieldPasswordHash = "password_hash"
	fieldRole         = "role"
	fieldDeviceHash   = "device_hash"
)

// User is the current registration of an account, as derived from the
// latest Register block for its id.
type User struct {
	UserID       string `json:"user_id"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	DeviceHash   string `json:"device_hash,omitempty"`
}

func (u *User) payload() map[string]any {
	return map[string]any{
		ledger.FieldUserID: u.UserID,
		fieldPasswordHash:  u.PasswordHash,
		fieldRole:          string(u.Role),
		fieldDeviceHash:    u.DeviceHash,
	}
}

func userFromPayload(data map[string]any) *User {
	str := func(k string) string {
		s, _ := data[k].(string)
		return s
	}
	return &User{
		UserID:       str(ledger.FieldUserID),
		PasswordHash: str(fieldPasswordHash),
		Role:         Role(str(fieldRole)),
		DeviceHash:   str(fieldDeviceHash),
	}
}
