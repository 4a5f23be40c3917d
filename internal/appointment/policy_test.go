package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/rolegate"
)

func fixedPolicy(now time.Time) *Policy {
	return NewPolicy(PolicyConfig{
		Now:            func() time.Time { return now },
		CancelLeadTime: 2 * time.Hour,
	})
}

func TestGrid(t *testing.T) {
	g := Grid()
	require.Len(t, g, 6+6+3)
	assert.Equal(t, "09:00 AM", g[0].Label)
	assert.Equal(t, Morning, g[0].Period)
	assert.Equal(t, "11:30 AM", g[5].Label)
	assert.Equal(t, "02:00 PM", g[6].Label)
	assert.Equal(t, Afternoon, g[6].Period)
	assert.Equal(t, "05:00 PM", g[12].Label)
	assert.Equal(t, "06:00 PM", g[14].Label)
	assert.Equal(t, Evening, g[14].Period)
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in    string
		label string
		ok    bool
	}{
		{"10:00 AM", "10:00 AM", true},
		{"10:00 am", "10:00 AM", true},
		{" 9:30 AM ", "09:30 AM", true},
		{"14:30", "02:30 PM", true},
		{"18:00", "06:00 PM", true},
		{"12:00 PM", "", false},
		{"10:15 AM", "", false},
		{"08:30", "", false},
		{"noon", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, ok := ParseSlot(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.label, s.Label)
		})
	}
}

func TestSlotFits(t *testing.T) {
	s, _ := ParseSlot("11:00 AM")
	assert.True(t, s.Fits(time.Hour))
	assert.False(t, s.Fits(90*time.Minute))

	s, _ = ParseSlot("06:00 PM")
	assert.True(t, s.Fits(30*time.Minute))
	assert.False(t, s.Fits(45*time.Minute))
	assert.True(t, s.Fits(0))
}

func TestAvailableSlots(t *testing.T) {
	p := fixedPolicy(time.Date(2025, 12, 18, 10, 15, 0, 0, time.UTC))

	t.Run("past date is empty", func(t *testing.T) {
		slots, err := p.AvailableSlots("2025-12-17", 0, nil)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("today skips started slots", func(t *testing.T) {
		slots, err := p.AvailableSlots("2025-12-18", 0, nil)
		require.NoError(t, err)
		require.NotEmpty(t, slots)
		assert.Equal(t, "10:30 AM", slots[0].Label)
	})

	t.Run("held and non-fitting slots excluded", func(t *testing.T) {
		held := map[string]string{"09:00 AM": "a1"}
		slots, err := p.AvailableSlots("2025-12-19", 90*time.Minute, held)
		require.NoError(t, err)
		labels := make([]string, 0, len(slots))
		for _, s := range slots {
			labels = append(labels, s.Label)
		}
		assert.NotContains(t, labels, "09:00 AM")
		assert.Contains(t, labels, "10:30 AM")
		assert.NotContains(t, labels, "11:00 AM")
		assert.Contains(t, labels, "03:30 PM")
		assert.Contains(t, labels, "05:00 PM")
		assert.NotContains(t, labels, "05:30 PM")
	})

	t.Run("malformed date", func(t *testing.T) {
		_, err := p.AvailableSlots("18/12/2025", 0, nil)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestValidateBooking(t *testing.T) {
	p := fixedPolicy(time.Date(2025, 12, 18, 10, 15, 0, 0, time.UTC))

	tests := []struct {
		name     string
		date     string
		slot     string
		duration time.Duration
		held     map[string]string
		want     error
	}{
		{"ok", "2025-12-19", "10:00 am", 30 * time.Minute, nil, nil},
		{"past date", "2025-12-17", "10:00 AM", 0, nil, apperr.ErrValidation},
		{"started today", "2025-12-18", "10:00 AM", 0, nil, apperr.ErrValidation},
		{"off grid", "2025-12-19", "12:30 PM", 0, nil, apperr.ErrValidation},
		{"does not fit", "2025-12-19", "04:30 PM", time.Hour, nil, apperr.ErrValidation},
		{"held", "2025-12-19", "10:00 AM", 0, map[string]string{"10:00 AM": "x"}, apperr.ErrSlotConflict},
		{"runs into held", "2025-12-19", "10:00 AM", time.Hour, map[string]string{"10:30 AM": "x"}, apperr.ErrSlotConflict},
		{"ends before held", "2025-12-19", "10:00 AM", 30 * time.Minute, map[string]string{"10:30 AM": "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := p.ValidateBooking(tt.date, tt.slot, tt.duration, tt.held)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "10:00 AM", slot.Label)
		})
	}
}

func TestSlotCovers(t *testing.T) {
	labels := func(slots []Slot) []string {
		out := make([]string, 0, len(slots))
		for _, s := range slots {
			out = append(out, s.Label)
		}
		return out
	}
	nine, _ := ParseSlot("09:00 AM")
	half, _ := ParseSlot("04:30 PM")

	assert.Equal(t, []string{"09:00 AM", "09:30 AM", "10:00 AM"}, labels(nine.Covers(90*time.Minute)))
	assert.Equal(t, []string{"09:00 AM", "09:30 AM"}, labels(nine.Covers(45*time.Minute)))
	assert.Equal(t, []string{"09:00 AM"}, labels(nine.Covers(0)))
	assert.Equal(t, []string{"04:30 PM"}, labels(half.Covers(time.Hour)))
}

func TestTransitions(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCanceled}:    true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCanceled}:  true,
	}
	all := []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if !want {
				assert.ErrorIs(t, ValidateTransition(from, to), apperr.ErrInvalidTransition)
			}
		}
	}
}

func TestWithinCancelLead(t *testing.T) {
	p := fixedPolicy(time.Date(2025, 12, 18, 8, 30, 0, 0, time.UTC))

	assert.True(t, p.WithinCancelLead(Appointment{Date: "2025-12-18", TimeSlot: "10:00 AM"}))
	assert.False(t, p.WithinCancelLead(Appointment{Date: "2025-12-18", TimeSlot: "02:00 PM"}))

	noLead := NewPolicy(PolicyConfig{Now: func() time.Time { return time.Date(2025, 12, 18, 9, 55, 0, 0, time.UTC) }})
	assert.False(t, noLead.WithinCancelLead(Appointment{Date: "2025-12-18", TimeSlot: "10:00 AM"}))
}

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()
	svc, err := c.Lookup("root-canal")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, svc.Duration)

	_, err = c.Lookup("whitening")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTransitionAction(t *testing.T) {
	tests := []struct {
		name   string
		role   account.Role
		target Status
		own    bool
		action rolegate.Action
		err    error
	}{
		{"doctor confirms", account.RoleDoctor, StatusConfirmed, false, rolegate.ConfirmAppointment, nil},
		{"patient confirms", account.RolePatient, StatusConfirmed, true, "", apperr.ErrAuthorizationDenied},
		{"admin completes", account.RoleAdmin, StatusCompleted, false, rolegate.CompleteAppointment, nil},
		{"owner cancels", account.RolePatient, StatusCanceled, true, rolegate.CancelOwnAppointment, nil},
		{"stranger cancels", account.RolePatient, StatusCanceled, false, "", apperr.ErrAuthorizationDenied},
		{"doctor cancels any", account.RoleDoctor, StatusCanceled, false, rolegate.CancelAnyAppointment, nil},
		{"back to pending", account.RoleAdmin, StatusPending, false, "", apperr.ErrInvalidTransition},
		{"unknown role", account.RoleUnknown, StatusCanceled, true, "", apperr.ErrAuthorizationDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := TransitionAction(tt.role, tt.target, tt.own)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, action)
		})
	}
}
