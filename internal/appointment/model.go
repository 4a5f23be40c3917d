package appointment

import (
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/account"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Holding statuses keep their slot reserved.
func (s Status) Holding() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Appointment struct {
	ID         string     `json:"id"`
	PatientRef string     `json:"patientRef"`
	DoctorRef  string     `json:"doctorRef,omitempty"`
	ServiceID  string     `json:"serviceId"`
	Date       string     `json:"date"`
	TimeSlot   string     `json:"timeSlot"`
	Status     Status     `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	RemovedAt  *time.Time `json:"removedAt,omitempty"`
}

// HoldsSlot reports whether a blocks its (doctor, date, slot) triple.
func (a Appointment) HoldsSlot() bool {
	return a.RemovedAt == nil && a.DoctorRef != "" && a.Status.Holding()
}

func (a Appointment) bucket() bucketRef {
	return bucketRef{DoctorRef: a.DoctorRef, Date: a.Date}
}

// BookingRequest is what a dashboard submits to create an appointment.
// DoctorRef may be empty for "any available specialist".
type BookingRequest struct {
	PatientRef string `json:"patientRef"`
	DoctorRef  string `json:"doctorRef,omitempty"`
	ServiceID  string `json:"serviceId"`
	Date       string `json:"date"`
	TimeSlot   string `json:"timeSlot"`
	Notes      string `json:"notes,omitempty"`
}

// Actor is the authenticated caller of a mutation.
type Actor struct {
	AccountID string
	Role      account.Role
}

// System is the actor used by background sweeps.
var System = Actor{AccountID: "system", Role: account.RoleAdmin}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	PatientRef string
	DoctorRef  string
	Date       string
	Status     Status
}

func (f Filter) match(a Appointment) bool {
	if f.PatientRef != "" && a.PatientRef != f.PatientRef {
		return false
	}
	if f.DoctorRef != "" && a.DoctorRef != f.DoctorRef {
		return false
	}
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
