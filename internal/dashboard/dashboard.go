// Package dashboard holds the per-role façades the portal screens talk to.
// Controllers only scope reads to the caller and forward writes; every rule is
// enforced by the registry and the directory.
package dashboard

import (
	"context"
	"fmt"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
	"github.com/hackgods/dental-clinic-portal/internal/session"
)

// Appointments is satisfied by *appointment.Registry.
type Appointments interface {
	Create(ctx context.Context, actor appointment.Actor, req appointment.BookingRequest) (appointment.Appointment, error)
	Transition(ctx context.Context, actor appointment.Actor, id string, target appointment.Status) (appointment.Appointment, error)
	Reschedule(ctx context.Context, actor appointment.Actor, id, date, timeSlot string) (appointment.Appointment, error)
	AssignDoctor(ctx context.Context, actor appointment.Actor, id, doctorRef string) (appointment.Appointment, error)
	UpdateNotes(ctx context.Context, actor appointment.Actor, id, notes string) (appointment.Appointment, error)
	Remove(ctx context.Context, actor appointment.Actor, id string) error
	Get(ctx context.Context, id string) (appointment.Appointment, error)
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	AvailableSlots(ctx context.Context, doctorRef, date, serviceID string) ([]appointment.Slot, error)
}

// Directory is satisfied by *account.Directory.
type Directory interface {
	Register(ctx context.Context, draft account.AccountDraft) (account.Account, error)
	Lookup(ctx context.Context, id string) (account.Account, bool, error)
	List(ctx context.Context, role account.Role) ([]account.Account, error)
}

type Deps struct {
	Appointments Appointments
	Directory    Directory
}

// base carries what every dashboard shares.
type base struct {
	actor appointment.Actor
	deps  Deps
}

func (b base) Actor() appointment.Actor {
	return b.actor
}

func (b base) cancel(ctx context.Context, id string) (appointment.Appointment, error) {
	return b.deps.Appointments.Transition(ctx, b.actor, id, appointment.StatusCanceled)
}

func (b base) reschedule(ctx context.Context, id, date, timeSlot string) (appointment.Appointment, error) {
	return b.deps.Appointments.Reschedule(ctx, b.actor, id, date, timeSlot)
}

func (b base) doctors(ctx context.Context) ([]account.Public, error) {
	if err := rolegate.Check(b.actor.Role, rolegate.ViewDoctorDirectory); err != nil {
		return nil, err
	}
	docs, err := b.deps.Directory.List(ctx, account.RoleDoctor)
	if err != nil {
		return nil, err
	}
	return publics(docs), nil
}

// Slots lists the open slots of doctorRef on date for serviceID.
func (b base) Slots(ctx context.Context, doctorRef, date, serviceID string) ([]appointment.Slot, error) {
	if err := rolegate.Check(b.actor.Role, rolegate.ViewDoctorDirectory); err != nil {
		return nil, err
	}
	return b.deps.Appointments.AvailableSlots(ctx, doctorRef, date, serviceID)
}

// visible returns appointment id when the caller holds action and mine
// accepts it. Appointments of others read as not found.
func (b base) visible(ctx context.Context, id string, action rolegate.Action, mine func(appointment.Appointment) bool) (appointment.Appointment, error) {
	if err := rolegate.Check(b.actor.Role, action); err != nil {
		return appointment.Appointment{}, err
	}
	appt, err := b.deps.Appointments.Get(ctx, id)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if !mine(appt) {
		return appointment.Appointment{}, fmt.Errorf("%w: appointment %s", apperr.ErrNotFound, id)
	}
	return appt, nil
}

func publics(accs []account.Account) []account.Public {
	out := make([]account.Public, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Public())
	}
	return out
}

// Open returns the dashboard for the session's role: *Patient, *Doctor or *Admin.
func Open(sess session.Session, deps Deps) (any, error) {
	actor := appointment.Actor{AccountID: sess.AccountID, Role: sess.Role}
	switch sess.Role {
	case account.RolePatient:
		return NewPatient(actor, deps)
	case account.RoleDoctor:
		return NewDoctor(actor, deps)
	case account.RoleAdmin:
		return NewAdmin(actor, deps)
	default:
		return nil, fmt.Errorf("%w: no dashboard for role %s", apperr.ErrAuthorizationDenied, sess.Role)
	}
}

func requireRole(actor appointment.Actor, role account.Role) error {
	if actor.AccountID == "" || actor.Role != role {
		return fmt.Errorf("%w: %s dashboard requires a %s session", apperr.ErrAuthorizationDenied, role, role)
	}
	return nil
}
