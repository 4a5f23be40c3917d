package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/audit"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/metrics"
	redisclient "github.com/hackgods/dental-clinic-portal/internal/redis"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

var tracer = otel.Tracer("github.com/hackgods/dental-clinic-portal/internal/appointment")

// Accounts is satisfied by *account.Directory.
type Accounts interface {
	Lookup(ctx context.Context, id string) (account.Account, bool, error)
}

type Config struct {
	// ClaimRetries bounds how often a commit is retried after a version conflict.
	ClaimRetries int
}

// Registry is the canonical appointment collection. Every mutation passes
// RoleGate, then the scheduling policy, then a versioned commit.
type Registry struct {
	repo     Repository
	accounts Accounts
	policy   *Policy
	locker   Locker
	events   *audit.Log
	metrics  *metrics.PortalMetrics
	logger   *logging.Logger
	cfg      Config
}

type Deps struct {
	Repo     Repository
	Accounts Accounts
	Policy   *Policy
	Locker   Locker
	Events   *audit.Log
	Metrics  *metrics.PortalMetrics
	Logger   *logging.Logger
}

func NewRegistry(deps Deps, cfg Config) *Registry {
	if cfg.ClaimRetries <= 0 {
		cfg.ClaimRetries = 3
	}
	if deps.Policy == nil {
		deps.Policy = NewPolicy(PolicyConfig{})
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Registry{
		repo:     deps.Repo,
		accounts: deps.Accounts,
		policy:   deps.Policy,
		locker:   deps.Locker,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "registry"),
		cfg:      cfg,
	}
}

func (r *Registry) Policy() *Policy {
	return r.policy
}

// mutation computes the next collection from the current one. It returns the
// new collection, the affected appointment and every bucket whose held slots changed.
type mutation func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error)

// commit runs m against the latest snapshot and saves it with the versions of
// the claimed and touched buckets. Version conflicts re-read and re-validate.
func (r *Registry) commit(ctx context.Context, claims []bucketRef, m mutation) (Appointment, error) {
	for attempt := 0; attempt < r.cfg.ClaimRetries; attempt++ {
		versions := make(map[bucketRef]int64)
		for _, ref := range claims {
			if ref.DoctorRef == "" {
				continue
			}
			v, err := r.repo.BucketVersion(ctx, ref)
			if err != nil {
				return Appointment{}, err
			}
			versions[ref] = v
		}

		snap, err := r.repo.Load(ctx)
		if err != nil {
			return Appointment{}, err
		}

		working := append([]Appointment(nil), snap.Appointments...)
		next, result, touched, err := m(working)
		if err != nil {
			return Appointment{}, err
		}

		for _, ref := range touched {
			if ref.DoctorRef == "" {
				continue
			}
			if _, ok := versions[ref]; ok {
				continue
			}
			v, err := r.repo.BucketVersion(ctx, ref)
			if err != nil {
				return Appointment{}, err
			}
			versions[ref] = v
		}

		err = r.repo.Save(ctx, Snapshot{Appointments: next, Version: snap.Version}, versions)
		if errors.Is(err, store.ErrVersionConflict) {
			r.metrics.ObserveClaimConflict()
			r.logger.Debug("version conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return Appointment{}, fmt.Errorf("save appointments: %w", err)
		}
		return result, nil
	}
	return Appointment{}, fmt.Errorf("%w: concurrent update, please retry", apperr.ErrSlotConflict)
}

// withClaimLock runs fn under the bucket lock when the booking names a doctor.
func (r *Registry) withClaimLock(ctx context.Context, ref bucketRef, fn func(ctx context.Context) error) error {
	if ref.DoctorRef == "" {
		return fn(ctx)
	}
	err := r.locker.WithBucketLock(ctx, ref.key(), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return fmt.Errorf("%w: slot is currently being booked, please retry", apperr.ErrSlotConflict)
	}
	return err
}

// Create books an appointment. Patients book for themselves and start Pending;
// staff holding ConfirmAppointment create it Confirmed.
func (r *Registry) Create(ctx context.Context, actor Actor, req BookingRequest) (appt Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Create", trace.WithAttributes(
		attribute.String("doctor_ref", req.DoctorRef),
		attribute.String("date", req.Date),
		attribute.String("slot", req.TimeSlot),
	))
	defer func() {
		endSpan(span, err)
		r.metrics.ObserveBooking(outcome(err, "created"))
	}()

	caps := rolegate.Capabilities(actor.Role)
	initial := StatusPending
	switch {
	case caps.Has(rolegate.BookOwnAppointment):
		if req.PatientRef != "" && req.PatientRef != actor.AccountID {
			return Appointment{}, fmt.Errorf("%w: patients book only for themselves", apperr.ErrAuthorizationDenied)
		}
		req.PatientRef = actor.AccountID
	case caps.Has(rolegate.BookForPatient):
		if actor.Role == account.RoleDoctor {
			if req.DoctorRef == "" {
				req.DoctorRef = actor.AccountID
			}
			if req.DoctorRef != actor.AccountID {
				return Appointment{}, fmt.Errorf("%w: doctors book only into their own schedule", apperr.ErrAuthorizationDenied)
			}
		}
		if caps.Has(rolegate.ConfirmAppointment) {
			initial = StatusConfirmed
		}
	default:
		return Appointment{}, rolegate.Check(actor.Role, rolegate.BookOwnAppointment)
	}

	if err := r.checkParticipants(ctx, req.PatientRef, req.DoctorRef); err != nil {
		return Appointment{}, err
	}
	svc, err := r.policy.Catalog().Lookup(req.ServiceID)
	if err != nil {
		return Appointment{}, err
	}

	ref := bucketRef{DoctorRef: req.DoctorRef, Date: strings.TrimSpace(req.Date)}
	err = r.withClaimLock(ctx, ref, func(ctx context.Context) error {
		var cerr error
		appt, cerr = r.commit(ctx, []bucketRef{ref}, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
			slot, err := r.policy.ValidateBooking(ref.Date, req.TimeSlot, svc.Duration, r.occupied(appts, ref, ""))
			if err != nil {
				return nil, Appointment{}, nil, err
			}
			now := r.policy.Now().UTC()
			a := Appointment{
				ID:         uuid.NewString(),
				PatientRef: req.PatientRef,
				DoctorRef:  req.DoctorRef,
				ServiceID:  svc.ID,
				Date:       ref.Date,
				TimeSlot:   slot.Label,
				Status:     initial,
				Notes:      strings.TrimSpace(req.Notes),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return append(appts, a), a, []bucketRef{ref}, nil
		})
		return cerr
	})
	if err != nil {
		return Appointment{}, err
	}

	r.logger.Info("appointment created", "appointment_id", appt.ID, "doctor_ref", appt.DoctorRef,
		"date", appt.Date, "slot", appt.TimeSlot, "status", string(appt.Status))
	r.events.Record(ctx, audit.EventAppointmentCreated, appt.ID, actor.AccountID, map[string]any{
		"doctor_ref": appt.DoctorRef,
		"date":       appt.Date,
		"slot":       appt.TimeSlot,
		"status":     string(appt.Status),
	})
	return appt, nil
}

func (r *Registry) checkParticipants(ctx context.Context, patientRef, doctorRef string) error {
	if patientRef == "" {
		return fmt.Errorf("%w: patient is required", apperr.ErrValidation)
	}
	if err := r.expectRole(ctx, patientRef, account.RolePatient); err != nil {
		return err
	}
	if doctorRef != "" {
		return r.expectRole(ctx, doctorRef, account.RoleDoctor)
	}
	return nil
}

func (r *Registry) expectRole(ctx context.Context, id string, role account.Role) error {
	if r.accounts == nil {
		return nil
	}
	acc, ok, err := r.accounts.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", role, err)
	}
	if !ok || acc.Role != role {
		return fmt.Errorf("%w: %s is not a registered %s", apperr.ErrValidation, id, role)
	}
	return nil
}

// Transition moves an appointment along the status graph.
func (r *Registry) Transition(ctx context.Context, actor Actor, id string, target Status) (appt Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Transition", trace.WithAttributes(
		attribute.String("appointment_id", id),
		attribute.String("target", string(target)),
	))
	defer func() { endSpan(span, err) }()

	var from Status
	appt, err = r.commit(ctx, nil, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
		i, err := indexOf(appts, id)
		if err != nil {
			return nil, Appointment{}, nil, err
		}
		a := appts[i]

		action, err := TransitionAction(actor.Role, target, a.PatientRef == actor.AccountID)
		if err != nil {
			return nil, Appointment{}, nil, err
		}
		if err := ValidateTransition(a.Status, target); err != nil {
			return nil, Appointment{}, nil, err
		}
		if action == rolegate.CancelOwnAppointment && r.policy.WithinCancelLead(a) {
			return nil, Appointment{}, nil, fmt.Errorf("%w: too close to the appointment to cancel online", apperr.ErrValidation)
		}

		from = a.Status
		a.Status = target
		a.UpdatedAt = r.policy.Now().UTC()
		appts[i] = a
		return appts, a, []bucketRef{a.bucket()}, nil
	})
	if err != nil {
		return Appointment{}, err
	}

	r.metrics.ObserveTransition(strings.ToLower(string(from)), strings.ToLower(string(target)))
	r.logger.Info("appointment status changed", "appointment_id", id, "from", string(from), "to", string(target), "actor", actor.AccountID)
	r.events.Record(ctx, transitionEvent(target), id, actor.AccountID, map[string]any{
		"from": string(from),
		"to":   string(target),
	})
	return appt, nil
}

func transitionEvent(target Status) string {
	switch target {
	case StatusConfirmed:
		return audit.EventAppointmentConfirmed
	case StatusCompleted:
		return audit.EventAppointmentCompleted
	default:
		return audit.EventAppointmentCanceled
	}
}

// Reschedule moves a non-terminal appointment to another date and slot. The
// old slot is released and the new one claimed in a single commit; on failure
// the appointment is unchanged.
func (r *Registry) Reschedule(ctx context.Context, actor Actor, id, date, timeSlot string) (appt Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", id),
		attribute.String("date", date),
		attribute.String("slot", timeSlot),
	))
	defer func() { endSpan(span, err) }()

	current, err := r.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if err := r.checkOwnOrAny(actor, current, rolegate.RescheduleOwnAppointment, rolegate.RescheduleAnyAppointment); err != nil {
		return Appointment{}, err
	}
	svc, err := r.policy.Catalog().Lookup(current.ServiceID)
	if err != nil {
		return Appointment{}, err
	}

	target := bucketRef{DoctorRef: current.DoctorRef, Date: strings.TrimSpace(date)}
	var previous Appointment
	err = r.withClaimLock(ctx, target, func(ctx context.Context) error {
		var cerr error
		appt, cerr = r.commit(ctx, []bucketRef{target}, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
			i, err := indexOf(appts, id)
			if err != nil {
				return nil, Appointment{}, nil, err
			}
			a := appts[i]
			if a.Status.Terminal() {
				return nil, Appointment{}, nil, fmt.Errorf("%w: %s appointments cannot be rescheduled", apperr.ErrInvalidTransition, a.Status)
			}
			ref := bucketRef{DoctorRef: a.DoctorRef, Date: target.Date}
			slot, err := r.policy.ValidateBooking(ref.Date, timeSlot, svc.Duration, r.occupied(appts, ref, a.ID))
			if err != nil {
				return nil, Appointment{}, nil, err
			}

			previous = a
			a.Date = ref.Date
			a.TimeSlot = slot.Label
			a.UpdatedAt = r.policy.Now().UTC()
			appts[i] = a
			return appts, a, []bucketRef{previous.bucket(), ref}, nil
		})
		return cerr
	})
	if err != nil {
		return Appointment{}, err
	}

	r.logger.Info("appointment rescheduled", "appointment_id", id,
		"from", previous.Date+" "+previous.TimeSlot, "to", appt.Date+" "+appt.TimeSlot)
	r.events.Record(ctx, audit.EventAppointmentMoved, id, actor.AccountID, map[string]any{
		"from_date": previous.Date,
		"from_slot": previous.TimeSlot,
		"to_date":   appt.Date,
		"to_slot":   appt.TimeSlot,
	})
	return appt, nil
}

// AssignDoctor attaches a doctor to an appointment, claiming the slot in the
// doctor's bucket and releasing the previous doctor's.
func (r *Registry) AssignDoctor(ctx context.Context, actor Actor, id, doctorRef string) (appt Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.AssignDoctor", trace.WithAttributes(
		attribute.String("appointment_id", id),
		attribute.String("doctor_ref", doctorRef),
	))
	defer func() { endSpan(span, err) }()

	if err := rolegate.Check(actor.Role, rolegate.AssignDoctor); err != nil {
		return Appointment{}, err
	}
	if err := r.expectRole(ctx, doctorRef, account.RoleDoctor); err != nil {
		return Appointment{}, err
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	svc, err := r.policy.Catalog().Lookup(current.ServiceID)
	if err != nil {
		return Appointment{}, err
	}

	target := bucketRef{DoctorRef: doctorRef, Date: current.Date}
	err = r.withClaimLock(ctx, target, func(ctx context.Context) error {
		var cerr error
		appt, cerr = r.commit(ctx, []bucketRef{target}, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
			i, err := indexOf(appts, id)
			if err != nil {
				return nil, Appointment{}, nil, err
			}
			a := appts[i]
			if a.Status.Terminal() {
				return nil, Appointment{}, nil, fmt.Errorf("%w: %s appointments cannot be reassigned", apperr.ErrInvalidTransition, a.Status)
			}
			ref := bucketRef{DoctorRef: doctorRef, Date: a.Date}
			if _, err := r.policy.ValidateBooking(a.Date, a.TimeSlot, svc.Duration, r.occupied(appts, ref, a.ID)); err != nil {
				return nil, Appointment{}, nil, err
			}

			old := a.bucket()
			a.DoctorRef = doctorRef
			a.UpdatedAt = r.policy.Now().UTC()
			appts[i] = a
			return appts, a, []bucketRef{old, ref}, nil
		})
		return cerr
	})
	if err != nil {
		return Appointment{}, err
	}

	r.events.Record(ctx, audit.EventAppointmentAssigned, id, actor.AccountID, map[string]any{"doctor_ref": doctorRef})
	return appt, nil
}

// UpdateNotes replaces the clinical notes. Admins may amend any appointment;
// doctors may not touch canceled ones.
func (r *Registry) UpdateNotes(ctx context.Context, actor Actor, id, notes string) (Appointment, error) {
	if err := rolegate.Check(actor.Role, rolegate.AnnotateAppointment); err != nil {
		return Appointment{}, err
	}

	appt, err := r.commit(ctx, nil, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
		i, err := indexOf(appts, id)
		if err != nil {
			return nil, Appointment{}, nil, err
		}
		a := appts[i]
		if a.Status == StatusCanceled && actor.Role != account.RoleAdmin {
			return nil, Appointment{}, nil, fmt.Errorf("%w: canceled appointments are read-only", apperr.ErrValidation)
		}
		a.Notes = strings.TrimSpace(notes)
		a.UpdatedAt = r.policy.Now().UTC()
		appts[i] = a
		return appts, a, nil, nil
	})
	if err != nil {
		return Appointment{}, err
	}

	r.events.Record(ctx, audit.EventAppointmentAnnotated, id, actor.AccountID, nil)
	return appt, nil
}

// Remove logically deletes an appointment and releases its slot.
func (r *Registry) Remove(ctx context.Context, actor Actor, id string) (err error) {
	ctx, span := tracer.Start(ctx, "appointment.Remove", trace.WithAttributes(attribute.String("appointment_id", id)))
	defer func() { endSpan(span, err) }()

	if err := rolegate.Check(actor.Role, rolegate.RemoveAppointment); err != nil {
		return err
	}

	_, err = r.commit(ctx, nil, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
		i, err := indexOf(appts, id)
		if err != nil {
			return nil, Appointment{}, nil, err
		}
		a := appts[i]
		now := r.policy.Now().UTC()
		a.RemovedAt = &now
		a.UpdatedAt = now
		appts[i] = a
		return appts, a, []bucketRef{a.bucket()}, nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("appointment removed", "appointment_id", id, "actor", actor.AccountID)
	r.events.Record(ctx, audit.EventAppointmentRemoved, id, actor.AccountID, nil)
	return nil
}

// CancelLapsedPending cancels Pending appointments whose date is before today
// and returns how many it moved.
func (r *Registry) CancelLapsedPending(ctx context.Context) (int, error) {
	today := r.policy.Today()
	pending, err := r.List(ctx, Filter{Status: StatusPending})
	if err != nil {
		return 0, fmt.Errorf("cancel lapsed pending: %w", err)
	}
	if len(pending) == 0 || pending[0].Date >= today {
		return 0, nil
	}

	var lapsed []string
	_, err = r.commit(ctx, nil, func(appts []Appointment) ([]Appointment, Appointment, []bucketRef, error) {
		lapsed = lapsed[:0]
		var touched []bucketRef
		now := r.policy.Now().UTC()
		for i, a := range appts {
			if a.RemovedAt != nil || a.Status != StatusPending || a.Date >= today {
				continue
			}
			a.Status = StatusCanceled
			a.UpdatedAt = now
			appts[i] = a
			lapsed = append(lapsed, a.ID)
			touched = append(touched, a.bucket())
		}
		return appts, Appointment{}, touched, nil
	})
	if err != nil {
		return 0, fmt.Errorf("cancel lapsed pending: %w", err)
	}

	for _, id := range lapsed {
		r.metrics.ObserveTransition("pending", "canceled")
		r.events.Record(ctx, audit.EventAppointmentCanceled, id, System.AccountID, map[string]any{"reason": "lapsed"})
	}
	return len(lapsed), nil
}

func (r *Registry) checkOwnOrAny(actor Actor, a Appointment, own, anyone rolegate.Action) error {
	action, err := rolegate.CheckAny(actor.Role, anyone, own)
	if err != nil {
		return err
	}
	if action == own && a.PatientRef != actor.AccountID {
		return fmt.Errorf("%w: not your appointment", apperr.ErrAuthorizationDenied)
	}
	return nil
}

// Get returns a live (not removed) appointment.
func (r *Registry) Get(ctx context.Context, id string) (Appointment, error) {
	snap, err := r.repo.Load(ctx)
	if err != nil {
		return Appointment{}, err
	}
	i, err := indexOf(snap.Appointments, id)
	if err != nil {
		return Appointment{}, err
	}
	return snap.Appointments[i], nil
}

// List returns live appointments matching f, ordered by date and slot.
func (r *Registry) List(ctx context.Context, f Filter) ([]Appointment, error) {
	snap, err := r.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(snap.Appointments))
	for _, a := range snap.Appointments {
		if a.RemovedAt == nil && f.match(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

// AvailableSlots lists the open slots of doctorRef on date for a service.
func (r *Registry) AvailableSlots(ctx context.Context, doctorRef, date, serviceID string) ([]Slot, error) {
	var duration time.Duration
	if serviceID != "" {
		svc, err := r.policy.Catalog().Lookup(serviceID)
		if err != nil {
			return nil, err
		}
		duration = svc.Duration
	}
	snap, err := r.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	held := map[string]string{}
	if doctorRef != "" {
		held = r.occupied(snap.Appointments, bucketRef{DoctorRef: doctorRef, Date: strings.TrimSpace(date)}, "")
	}
	return r.policy.AvailableSlots(date, duration, held)
}

// occupied maps every grid slot covered by a holding appointment in ref to
// that appointment, skipping exclude.
func (r *Registry) occupied(appts []Appointment, ref bucketRef, exclude string) map[string]string {
	out := make(map[string]string)
	for label, id := range heldSlots(appts, ref, exclude) {
		slot, ok := ParseSlot(label)
		if !ok {
			continue
		}
		var duration time.Duration
		if a, err := indexOf(appts, id); err == nil {
			if svc, err := r.policy.Catalog().Lookup(appts[a].ServiceID); err == nil {
				duration = svc.Duration
			}
		}
		for _, c := range slot.Covers(duration) {
			out[c.Label] = id
		}
	}
	return out
}

func indexOf(appts []Appointment, id string) (int, error) {
	for i, a := range appts {
		if a.ID == id && a.RemovedAt == nil {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: appointment %s", apperr.ErrNotFound, id)
}

func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		si, _ := ParseSlot(appts[i].TimeSlot)
		sj, _ := ParseSlot(appts[j].TimeSlot)
		if si.Start != sj.Start {
			return si.Start < sj.Start
		}
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
}

func outcome(err error, ok string) string {
	if err == nil {
		return ok
	}
	return apperr.Kind(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Kind(err))
	}
	span.End()
}
