package dashboard

import (
	"context"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
)

type Patient struct {
	base
}

func NewPatient(actor appointment.Actor, deps Deps) (*Patient, error) {
	if err := requireRole(actor, account.RolePatient); err != nil {
		return nil, err
	}
	return &Patient{base{actor: actor, deps: deps}}, nil
}

func (p *Patient) MyAppointments(ctx context.Context) ([]appointment.Appointment, error) {
	if err := rolegate.Check(p.actor.Role, rolegate.ViewOwnAppointments); err != nil {
		return nil, err
	}
	return p.deps.Appointments.List(ctx, appointment.Filter{PatientRef: p.actor.AccountID})
}

// Book always books for the caller.
func (p *Patient) Book(ctx context.Context, req appointment.BookingRequest) (appointment.Appointment, error) {
	req.PatientRef = p.actor.AccountID
	return p.deps.Appointments.Create(ctx, p.actor, req)
}

func (p *Patient) Cancel(ctx context.Context, id string) (appointment.Appointment, error) {
	return p.cancel(ctx, id)
}

func (p *Patient) Reschedule(ctx context.Context, id, date, timeSlot string) (appointment.Appointment, error) {
	return p.reschedule(ctx, id, date, timeSlot)
}

func (p *Patient) Doctors(ctx context.Context) ([]account.Public, error) {
	return p.doctors(ctx)
}

// Appointment returns one of the caller's own appointments.
func (p *Patient) Appointment(ctx context.Context, id string) (appointment.Appointment, error) {
	return p.visible(ctx, id, rolegate.ViewOwnAppointments, func(a appointment.Appointment) bool {
		return a.PatientRef == p.actor.AccountID
	})
}

func (p *Patient) AvailableSlots(ctx context.Context, doctorRef, date, serviceID string) ([]appointment.Slot, error) {
	return p.Slots(ctx, doctorRef, date, serviceID)
}
