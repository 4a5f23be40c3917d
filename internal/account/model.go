package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
)

// Role is the closed set of user classes. The zero value is RoleUnknown, which
// RoleGate treats as having no capabilities.
type Role int

const (
	RoleUnknown Role = iota
	RolePatient
	RoleDoctor
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole accepts the lowercase role names.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient":
		return RolePatient, nil
	case "doctor":
		return RoleDoctor, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText never fails; unrecognised names decode to RoleUnknown.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		*r = RoleUnknown
		return nil
	}
	*r = parsed
	return nil
}

type Account struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	Role         Role      `json:"role"`
	Specialty    string    `json:"specialty,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public is the account without its password hash.
type Public struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `json:"role"`
	Specialty string `json:"specialty,omitempty"`
}

func (a Account) Public() Public {
	return Public{
		ID:        a.ID,
		FullName:  a.FullName,
		Email:     a.Email,
		Phone:     a.Phone,
		Role:      a.Role,
		Specialty: a.Specialty,
	}
}

// AccountDraft is the signup form.
type AccountDraft struct {
	FullName       string
	Email          string
	Phone          string
	Password       string
	Role           Role
	Specialty      string
	IssuanceSecret string
}

// NormalizeEmail lowercases and trims an address before storage or comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
