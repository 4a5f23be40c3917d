package account

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

func newTestDirectory(t *testing.T, docs store.Store) *Directory {
	t.Helper()
	dir, err := NewDirectory(docs, NewSecretIssuer("ADMIN123"), logging.Discard(), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	return dir
}

func patientDraft(email string) AccountDraft {
	return AccountDraft{FullName: "Asha Patel", Email: email, Phone: "555-0100", Password: "secret123", Role: RolePatient}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	dir := newTestDirectory(t, store.NewMemoryStore())

	acc, err := dir.Register(context.Background(), patientDraft("  Asha@Example.COM "))
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", acc.Email)
	assert.NotEmpty(t, acc.ID)
	assert.NotEqual(t, "secret123", acc.PasswordHash)
}

func TestRegisterDuplicateEmailIgnoresCase(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, store.NewMemoryStore())

	_, err := dir.Register(ctx, patientDraft("a@x.com"))
	require.NoError(t, err)

	_, err = dir.Register(ctx, AccountDraft{
		FullName: "Dr. A", Email: "A@X.com", Password: "secret123", Role: RoleDoctor, Specialty: "Endodontist",
	})
	require.ErrorIs(t, err, apperr.ErrDuplicateEmail)
}

func TestRegisterDuplicateEmailWinsOverOtherProblems(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, store.NewMemoryStore())

	_, err := dir.Register(ctx, patientDraft("a@x.com"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		draft AccountDraft
	}{
		{"doctor without specialty", AccountDraft{FullName: "Dr. A", Email: "A@X.com", Password: "secret123", Role: RoleDoctor}},
		{"admin with wrong secret", AccountDraft{FullName: "Mallory", Email: "a@x.com", Password: "secret123", Role: RoleAdmin, IssuanceSecret: "guess"}},
		{"short password", AccountDraft{FullName: "Asha", Email: " a@x.COM", Password: "x", Role: RolePatient}},
		{"unknown role", AccountDraft{FullName: "Asha", Email: "a@x.com", Password: "secret123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.Register(ctx, tt.draft)
			assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	dir := newTestDirectory(t, store.NewMemoryStore())

	tests := []struct {
		name  string
		draft AccountDraft
		want  error
	}{
		{"empty email", AccountDraft{FullName: "X", Password: "secret123", Role: RolePatient}, apperr.ErrValidation},
		{"bad email", AccountDraft{FullName: "X", Email: "nope", Password: "secret123", Role: RolePatient}, apperr.ErrValidation},
		{"short password", AccountDraft{FullName: "X", Email: "x@y.com", Password: "short", Role: RolePatient}, apperr.ErrValidation},
		{"empty name", AccountDraft{Email: "x@y.com", Password: "secret123", Role: RolePatient}, apperr.ErrValidation},
		{"doctor without specialty", AccountDraft{FullName: "X", Email: "x@y.com", Password: "secret123", Role: RoleDoctor}, apperr.ErrValidation},
		{"unknown role", AccountDraft{FullName: "X", Email: "x@y.com", Password: "secret123"}, apperr.ErrValidation},
		{"admin with wrong secret", AccountDraft{FullName: "X", Email: "x@y.com", Password: "secret123", Role: RoleAdmin, IssuanceSecret: "guess"}, apperr.ErrAuthorizationDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.Register(context.Background(), tt.draft)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterAdminWithIssuanceSecret(t *testing.T) {
	dir := newTestDirectory(t, store.NewMemoryStore())

	acc, err := dir.Register(context.Background(), AccountDraft{
		FullName: "Front Desk", Email: "desk@clinic.test", Password: "secret123", Role: RoleAdmin, IssuanceSecret: "ADMIN123",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, acc.Role)
}

func TestRegisterConcurrentDuplicates(t *testing.T) {
	dir := newTestDirectory(t, store.NewMemoryStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.Register(context.Background(), patientDraft("race@x.com")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	patients, err := dir.List(context.Background(), RolePatient)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, store.NewMemoryStore())
	acc, err := dir.Register(ctx, patientDraft("a@x.com"))
	require.NoError(t, err)

	got, err := dir.Authenticate(ctx, " A@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, wrongPassword := dir.Authenticate(ctx, "a@x.com", "wrong-password")
	_, unknownEmail := dir.Authenticate(ctx, "nobody@x.com", "secret123")
	require.ErrorIs(t, wrongPassword, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, apperr.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLookupAndList(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, store.NewMemoryStore())
	p, err := dir.Register(ctx, patientDraft("p@x.com"))
	require.NoError(t, err)
	_, err = dir.Register(ctx, AccountDraft{FullName: "Dr. B", Email: "b@x.com", Password: "secret123", Role: RoleDoctor, Specialty: "Orthodontist"})
	require.NoError(t, err)

	got, ok, err := dir.Lookup(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p@x.com", got.Email)

	_, ok, err = dir.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	doctors, err := dir.List(ctx, RoleDoctor)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, "Orthodontist", doctors[0].Specialty)

	all, err := dir.List(ctx, RoleUnknown)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCorruptAccountsDocumentIsReset(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Corrupt(accountsKey, []byte(`[{"id":`))
	dir := newTestDirectory(t, mem)

	_, ok, err := dir.Lookup(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = dir.Register(ctx, patientDraft("fresh@x.com"))
	require.NoError(t, err)
}

func TestRoleText(t *testing.T) {
	var r Role
	require.NoError(t, r.UnmarshalText([]byte("superuser")))
	assert.Equal(t, RoleUnknown, r)

	require.NoError(t, r.UnmarshalText([]byte("doctor")))
	assert.Equal(t, RoleDoctor, r)

	text, err := RoleAdmin.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "admin", string(text))
}

func TestSecretIssuer(t *testing.T) {
	assert.True(t, NewSecretIssuer("ADMIN123").Verify("ADMIN123"))
	assert.False(t, NewSecretIssuer("ADMIN123").Verify("admin123"))
	assert.False(t, NewSecretIssuer("").Verify(""))
	assert.False(t, DenyAll{}.Verify("anything"))
}
