package api

import (
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/account"
)

type RegisterRequest struct {
	FullName    string       `json:"fullName"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	Password    string       `json:"password"`
	Role        account.Role `json:"role"`
	Specialty   string       `json:"specialty"`
	AdminSecret string       `json:"adminSecret"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Token     string         `json:"token,omitempty"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Account   account.Public `json:"account"`
}

type RescheduleRequest struct {
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type AssignDoctorRequest struct {
	DoctorRef string `json:"doctorRef"`
}

type SlotResponse struct {
	Label  string `json:"label"`
	Period string `json:"period"`
}

type ServiceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
