package rolegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
)

func TestCapabilitiesTable(t *testing.T) {
	tests := []struct {
		role  account.Role
		allow []Action
		deny  []Action
	}{
		{
			role:  account.RolePatient,
			allow: []Action{ViewOwnAppointments, BookOwnAppointment, CancelOwnAppointment, ViewDoctorDirectory},
			deny:  []Action{ConfirmAppointment, CompleteAppointment, CancelAnyAppointment, ViewAllAppointments, RemoveAppointment, ManagePayments},
		},
		{
			role:  account.RoleDoctor,
			allow: []Action{ViewAssignedAppointments, ConfirmAppointment, CompleteAppointment, CancelAnyAppointment, IssuePrescription},
			deny:  []Action{ViewAllAppointments, RemoveAppointment, ManageDoctors, BookOwnAppointment},
		},
		{
			role:  account.RoleAdmin,
			allow: []Action{ViewAllAppointments, ConfirmAppointment, RemoveAppointment, ManageDoctors, ManagePatients, ManagePayments, AssignDoctor},
			deny:  []Action{CancelOwnAppointment, IssuePrescription},
		},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			caps := Capabilities(tt.role)
			for _, a := range tt.allow {
				assert.True(t, caps.Has(a), "expected %s to allow %s", tt.role, a)
			}
			for _, a := range tt.deny {
				assert.False(t, caps.Has(a), "expected %s to deny %s", tt.role, a)
			}
		})
	}
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	for _, role := range []account.Role{account.RoleUnknown, account.Role(42), account.Role(-1)} {
		assert.Empty(t, Capabilities(role).Actions())
		require.ErrorIs(t, Check(role, ViewOwnAppointments), apperr.ErrAuthorizationDenied)
	}
}

func TestCheckAny(t *testing.T) {
	got, err := CheckAny(account.RoleDoctor, CancelOwnAppointment, CancelAnyAppointment)
	require.NoError(t, err)
	assert.Equal(t, CancelAnyAppointment, got)

	_, err = CheckAny(account.RolePatient, ConfirmAppointment, CompleteAppointment)
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)
}
