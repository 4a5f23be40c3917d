// Package rolegate maps roles to the actions they may perform. It is a pure
// table: no storage, no identities.
package rolegate

import (
	"fmt"
	"sort"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
)

type Action string

const (
	ViewOwnAppointments      Action = "view:own-appointments"
	ViewAssignedAppointments Action = "view:assigned-appointments"
	ViewAllAppointments      Action = "view:all-appointments"
	BookOwnAppointment       Action = "book:own-appointment"
	BookForPatient           Action = "book:for-patient"
	ConfirmAppointment       Action = "confirm:appointment"
	CompleteAppointment      Action = "complete:appointment"
	CancelOwnAppointment     Action = "cancel:own-appointment"
	CancelAnyAppointment     Action = "cancel:any-appointment"
	RescheduleOwnAppointment Action = "reschedule:own-appointment"
	RescheduleAnyAppointment Action = "reschedule:any-appointment"
	AnnotateAppointment      Action = "annotate:appointment"
	AssignDoctor             Action = "assign:doctor"
	RemoveAppointment        Action = "remove:appointment"
	ViewDoctorDirectory      Action = "view:doctor-directory"
	ViewPatients             Action = "view:patients"
	ManageDoctors            Action = "manage:doctors"
	ManagePatients           Action = "manage:patients"
	ManagePayments           Action = "manage:payments"
	IssuePrescription        Action = "issue:prescription"
	ViewReports              Action = "view:reports"
)

// Set is an immutable capability set.
type Set struct {
	actions map[Action]struct{}
}

func newSet(actions ...Action) Set {
	m := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		m[a] = struct{}{}
	}
	return Set{actions: m}
}

func (s Set) Has(a Action) bool {
	_, ok := s.actions[a]
	return ok
}

// Actions lists the set in a stable order.
func (s Set) Actions() []Action {
	out := make([]Action, 0, len(s.actions))
	for a := range s.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	patientSet = newSet(
		ViewOwnAppointments,
		BookOwnAppointment,
		CancelOwnAppointment,
		RescheduleOwnAppointment,
		ViewDoctorDirectory,
	)
	doctorSet = newSet(
		ViewAssignedAppointments,
		BookForPatient,
		ConfirmAppointment,
		CompleteAppointment,
		CancelAnyAppointment,
		RescheduleAnyAppointment,
		AnnotateAppointment,
		ViewDoctorDirectory,
		ViewPatients,
		IssuePrescription,
	)
	adminSet = newSet(
		ViewAllAppointments,
		BookForPatient,
		ConfirmAppointment,
		CompleteAppointment,
		CancelAnyAppointment,
		RescheduleAnyAppointment,
		AnnotateAppointment,
		AssignDoctor,
		RemoveAppointment,
		ViewDoctorDirectory,
		ViewPatients,
		ManageDoctors,
		ManagePatients,
		ManagePayments,
		ViewReports,
	)
	emptySet = newSet()
)

// Capabilities returns the fixed capability set of role. Unknown roles get nothing.
func Capabilities(role account.Role) Set {
	switch role {
	case account.RolePatient:
		return patientSet
	case account.RoleDoctor:
		return doctorSet
	case account.RoleAdmin:
		return adminSet
	default:
		return emptySet
	}
}

// Check returns ErrAuthorizationDenied when role lacks action.
func Check(role account.Role, action Action) error {
	if Capabilities(role).Has(action) {
		return nil
	}
	return fmt.Errorf("%w: %s may not %s", apperr.ErrAuthorizationDenied, role, action)
}

// CheckAny passes when role holds at least one of actions and returns the first held.
func CheckAny(role account.Role, actions ...Action) (Action, error) {
	caps := Capabilities(role)
	for _, a := range actions {
		if caps.Has(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s may not %v", apperr.ErrAuthorizationDenied, role, actions)
}
