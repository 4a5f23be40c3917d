package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
)

const dateLayout = "2006-01-02"

type Period string

const (
	Morning   Period = "Morning"
	Afternoon Period = "Afternoon"
	Evening   Period = "Evening"
)

// Slot is one entry of the daily grid. Start is the offset from midnight.
type Slot struct {
	Label  string        `json:"label"`
	Period Period        `json:"period"`
	Start  time.Duration `json:"-"`
}

type periodWindow struct {
	period Period
	first  time.Duration
	end    time.Duration
}

// Half-hour starts; a visit must finish by the end of its period.
var periods = []periodWindow{
	{Morning, 9 * time.Hour, 12 * time.Hour},
	{Afternoon, 14 * time.Hour, 17 * time.Hour},
	{Evening, 17 * time.Hour, 18*time.Hour + 30*time.Minute},
}

const slotStep = 30 * time.Minute

var grid = buildGrid()

func buildGrid() []Slot {
	var out []Slot
	for _, p := range periods {
		for start := p.first; start < p.end; start += slotStep {
			out = append(out, Slot{Label: formatSlot(start), Period: p.period, Start: start})
		}
	}
	return out
}

func formatSlot(offset time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset).Format("03:04 PM")
}

// Grid returns the full daily slot grid.
func Grid() []Slot {
	return append([]Slot(nil), grid...)
}

// ParseSlot maps "10:00 AM", "10:00 am", "9:30 AM" or "14:00" onto a grid entry.
func ParseSlot(label string) (Slot, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	var t time.Time
	var err error
	if strings.HasSuffix(label, "AM") || strings.HasSuffix(label, "PM") {
		t, err = time.Parse("3:04 PM", label)
	} else {
		t, err = time.Parse("15:04", label)
	}
	if err != nil {
		return Slot{}, false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	for _, s := range grid {
		if s.Start == offset {
			return s, true
		}
	}
	return Slot{}, false
}

func periodEnd(p Period) time.Duration {
	for _, w := range periods {
		if w.period == p {
			return w.end
		}
	}
	return 0
}

// Fits reports whether a visit of duration d starting at s ends inside its period.
func (s Slot) Fits(d time.Duration) bool {
	if d <= 0 {
		d = slotStep
	}
	return s.Start+d <= periodEnd(s.Period)
}

// Covers returns the grid slots a visit of duration d starting at s occupies.
func (s Slot) Covers(d time.Duration) []Slot {
	if d <= 0 {
		d = slotStep
	}
	var out []Slot
	for _, g := range grid {
		if g.Period == s.Period && g.Start >= s.Start && g.Start < s.Start+d {
			out = append(out, g)
		}
	}
	return out
}

// occupiedBy returns the id holding any slot a visit of duration d at s needs.
func occupiedBy(s Slot, d time.Duration, held map[string]string) (string, bool) {
	for _, c := range s.Covers(d) {
		if id, taken := held[c.Label]; taken {
			return id, true
		}
	}
	return "", false
}

// PolicyConfig configures scheduling rules.
type PolicyConfig struct {
	Location       *time.Location
	CancelLeadTime time.Duration
	Now            func() time.Time
	Catalog        Catalog
}

// Policy owns slot availability, booking validation and the status graph.
type Policy struct {
	loc        *time.Location
	cancelLead time.Duration
	now        func() time.Time
	catalog    Catalog
}

func NewPolicy(cfg PolicyConfig) *Policy {
	p := &Policy{
		loc:        cfg.Location,
		cancelLead: cfg.CancelLeadTime,
		now:        cfg.Now,
		catalog:    cfg.Catalog,
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.catalog == nil {
		p.catalog = DefaultCatalog()
	}
	return p
}

func (p *Policy) Catalog() Catalog {
	return p.catalog
}

// Now is the policy clock in the clinic's time zone.
func (p *Policy) Now() time.Time {
	return p.now().In(p.loc)
}

// Today is the clinic-local date.
func (p *Policy) Today() string {
	return p.Now().Format(dateLayout)
}

// ParseDate validates a YYYY-MM-DD date in the clinic's time zone.
func (p *Policy) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", apperr.ErrValidation, date)
	}
	return d, nil
}

// SlotStart is the wall-clock start of slot on date.
func (p *Policy) SlotStart(date string, slot Slot) (time.Time, error) {
	d, err := p.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(slot.Start), nil
}

// AvailableSlots lists the starts where the service fits its period without
// touching a held slot and, for today, that have not passed. held maps every
// occupied grid label to the appointment occupying it.
func (p *Policy) AvailableSlots(date string, duration time.Duration, held map[string]string) ([]Slot, error) {
	day, err := p.ParseDate(date)
	if err != nil {
		return nil, err
	}
	now := p.Now()
	if day.Format(dateLayout) < now.Format(dateLayout) {
		return []Slot{}, nil
	}

	out := make([]Slot, 0, len(grid))
	for _, s := range grid {
		if !s.Fits(duration) {
			continue
		}
		if _, taken := occupiedBy(s, duration, held); taken {
			continue
		}
		if day.Add(s.Start).Before(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ValidateBooking checks the requested date and slot against the grid and the
// slots already occupied for that doctor and date. Every slot the visit covers
// must be free. It returns the normalized slot.
func (p *Policy) ValidateBooking(date, timeSlot string, duration time.Duration, held map[string]string) (Slot, error) {
	day, err := p.ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	slot, ok := ParseSlot(timeSlot)
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q is not a bookable time slot", apperr.ErrValidation, timeSlot)
	}

	now := p.Now()
	if day.Format(dateLayout) < now.Format(dateLayout) {
		return Slot{}, fmt.Errorf("%w: date %s is in the past", apperr.ErrValidation, date)
	}
	if day.Add(slot.Start).Before(now) {
		return Slot{}, fmt.Errorf("%w: slot %s on %s has already started", apperr.ErrValidation, slot.Label, date)
	}
	if !slot.Fits(duration) {
		return Slot{}, fmt.Errorf("%w: a %s visit does not fit at %s", apperr.ErrValidation, duration, slot.Label)
	}
	if id, taken := occupiedBy(slot, duration, held); taken {
		return Slot{}, fmt.Errorf("%w: %s on %s overlaps appointment %s", apperr.ErrSlotConflict, slot.Label, date, id)
	}
	return slot, nil
}

// WithinCancelLead reports whether a's start is closer than the patient
// cancellation lead time.
func (p *Policy) WithinCancelLead(a Appointment) bool {
	if p.cancelLead <= 0 {
		return false
	}
	slot, ok := ParseSlot(a.TimeSlot)
	if !ok {
		return false
	}
	start, err := p.SlotStart(a.Date, slot)
	if err != nil {
		return false
	}
	return start.Sub(p.Now()) < p.cancelLead
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCompleted, StatusCanceled},
	StatusCompleted: nil,
	StatusCanceled:  nil,
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	return nil
}

// TransitionAction returns the capability role needs to move an appointment to
// target. own reports whether the caller is the appointment's patient.
func TransitionAction(role account.Role, target Status, own bool) (rolegate.Action, error) {
	switch target {
	case StatusConfirmed:
		return rolegate.ConfirmAppointment, rolegate.Check(role, rolegate.ConfirmAppointment)
	case StatusCompleted:
		return rolegate.CompleteAppointment, rolegate.Check(role, rolegate.CompleteAppointment)
	case StatusCanceled:
		action, err := rolegate.CheckAny(role, rolegate.CancelAnyAppointment, rolegate.CancelOwnAppointment)
		if err != nil {
			return "", err
		}
		if action == rolegate.CancelOwnAppointment && !own {
			return "", fmt.Errorf("%w: not your appointment", apperr.ErrAuthorizationDenied)
		}
		return action, nil
	default:
		return "", fmt.Errorf("%w: cannot move to %q", apperr.ErrInvalidTransition, target)
	}
}
