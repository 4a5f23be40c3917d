package dashboard

import (
	"context"
	"sort"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
)

type Doctor struct {
	base
}

func NewDoctor(actor appointment.Actor, deps Deps) (*Doctor, error) {
	if err := requireRole(actor, account.RoleDoctor); err != nil {
		return nil, err
	}
	return &Doctor{base{actor: actor, deps: deps}}, nil
}

// MyAppointments lists appointments assigned to the caller, optionally on one date.
func (d *Doctor) MyAppointments(ctx context.Context, date string) ([]appointment.Appointment, error) {
	if err := rolegate.Check(d.actor.Role, rolegate.ViewAssignedAppointments); err != nil {
		return nil, err
	}
	return d.deps.Appointments.List(ctx, appointment.Filter{DoctorRef: d.actor.AccountID, Date: date})
}

// Book schedules a patient into the caller's own calendar.
func (d *Doctor) Book(ctx context.Context, req appointment.BookingRequest) (appointment.Appointment, error) {
	if req.DoctorRef == "" {
		req.DoctorRef = d.actor.AccountID
	}
	return d.deps.Appointments.Create(ctx, d.actor, req)
}

func (d *Doctor) Confirm(ctx context.Context, id string) (appointment.Appointment, error) {
	return d.deps.Appointments.Transition(ctx, d.actor, id, appointment.StatusConfirmed)
}

func (d *Doctor) Complete(ctx context.Context, id string) (appointment.Appointment, error) {
	return d.deps.Appointments.Transition(ctx, d.actor, id, appointment.StatusCompleted)
}

func (d *Doctor) Cancel(ctx context.Context, id string) (appointment.Appointment, error) {
	return d.cancel(ctx, id)
}

func (d *Doctor) Annotate(ctx context.Context, id, notes string) (appointment.Appointment, error) {
	return d.deps.Appointments.UpdateNotes(ctx, d.actor, id, notes)
}

func (d *Doctor) Reschedule(ctx context.Context, id, date, timeSlot string) (appointment.Appointment, error) {
	return d.reschedule(ctx, id, date, timeSlot)
}

func (d *Doctor) Doctors(ctx context.Context) ([]account.Public, error) {
	return d.doctors(ctx)
}

// Appointment returns an appointment assigned to the caller.
func (d *Doctor) Appointment(ctx context.Context, id string) (appointment.Appointment, error) {
	return d.visible(ctx, id, rolegate.ViewAssignedAppointments, func(a appointment.Appointment) bool {
		return a.DoctorRef == d.actor.AccountID
	})
}

// AvailableSlots lists the caller's own open slots.
func (d *Doctor) AvailableSlots(ctx context.Context, date, serviceID string) ([]appointment.Slot, error) {
	return d.Slots(ctx, "", date, serviceID)
}

// Slots defaults to the caller's own calendar when doctorRef is empty.
func (d *Doctor) Slots(ctx context.Context, doctorRef, date, serviceID string) ([]appointment.Slot, error) {
	if doctorRef == "" {
		doctorRef = d.actor.AccountID
	}
	return d.base.Slots(ctx, doctorRef, date, serviceID)
}

// Patients lists the distinct patients of the caller's appointments.
func (d *Doctor) Patients(ctx context.Context) ([]account.Public, error) {
	if err := rolegate.Check(d.actor.Role, rolegate.ViewPatients); err != nil {
		return nil, err
	}
	appts, err := d.deps.Appointments.List(ctx, appointment.Filter{DoctorRef: d.actor.AccountID})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := []account.Public{}
	for _, a := range appts {
		if seen[a.PatientRef] {
			continue
		}
		seen[a.PatientRef] = true
		acc, ok, err := d.deps.Directory.Lookup(ctx, a.PatientRef)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, acc.Public())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}
