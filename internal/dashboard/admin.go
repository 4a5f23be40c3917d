package dashboard

import (
	"context"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
)

type Admin struct {
	base
}

func NewAdmin(actor appointment.Actor, deps Deps) (*Admin, error) {
	if err := requireRole(actor, account.RoleAdmin); err != nil {
		return nil, err
	}
	return &Admin{base{actor: actor, deps: deps}}, nil
}

func (a *Admin) AllAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	if err := rolegate.Check(a.actor.Role, rolegate.ViewAllAppointments); err != nil {
		return nil, err
	}
	return a.deps.Appointments.List(ctx, f)
}

func (a *Admin) Appointment(ctx context.Context, id string) (appointment.Appointment, error) {
	return a.visible(ctx, id, rolegate.ViewAllAppointments, func(appointment.Appointment) bool { return true })
}

func (a *Admin) Book(ctx context.Context, req appointment.BookingRequest) (appointment.Appointment, error) {
	return a.deps.Appointments.Create(ctx, a.actor, req)
}

func (a *Admin) Confirm(ctx context.Context, id string) (appointment.Appointment, error) {
	return a.deps.Appointments.Transition(ctx, a.actor, id, appointment.StatusConfirmed)
}

func (a *Admin) Complete(ctx context.Context, id string) (appointment.Appointment, error) {
	return a.deps.Appointments.Transition(ctx, a.actor, id, appointment.StatusCompleted)
}

func (a *Admin) Cancel(ctx context.Context, id string) (appointment.Appointment, error) {
	return a.cancel(ctx, id)
}

func (a *Admin) Annotate(ctx context.Context, id, notes string) (appointment.Appointment, error) {
	return a.deps.Appointments.UpdateNotes(ctx, a.actor, id, notes)
}

func (a *Admin) Reschedule(ctx context.Context, id, date, timeSlot string) (appointment.Appointment, error) {
	return a.reschedule(ctx, id, date, timeSlot)
}

func (a *Admin) AssignDoctor(ctx context.Context, id, doctorRef string) (appointment.Appointment, error) {
	return a.deps.Appointments.AssignDoctor(ctx, a.actor, id, doctorRef)
}

func (a *Admin) Remove(ctx context.Context, id string) error {
	return a.deps.Appointments.Remove(ctx, a.actor, id)
}

func (a *Admin) Doctors(ctx context.Context) ([]account.Public, error) {
	return a.doctors(ctx)
}

func (a *Admin) Patients(ctx context.Context) ([]account.Public, error) {
	if err := rolegate.Check(a.actor.Role, rolegate.ViewPatients); err != nil {
		return nil, err
	}
	patients, err := a.deps.Directory.List(ctx, account.RolePatient)
	if err != nil {
		return nil, err
	}
	return publics(patients), nil
}

// RegisterDoctor creates a doctor account on the admin's behalf.
func (a *Admin) RegisterDoctor(ctx context.Context, draft account.AccountDraft) (account.Public, error) {
	if err := rolegate.Check(a.actor.Role, rolegate.ManageDoctors); err != nil {
		return account.Public{}, err
	}
	draft.Role = account.RoleDoctor
	acc, err := a.deps.Directory.Register(ctx, draft)
	if err != nil {
		return account.Public{}, err
	}
	return acc.Public(), nil
}
