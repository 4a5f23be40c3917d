package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

var testCfg = Config{Secret: []byte("test-session-secret"), TTL: time.Hour}

type fixture struct {
	docs *store.MemoryStore
	dir  *account.Directory
	acc  account.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	docs := store.NewMemoryStore()
	dir, err := account.NewDirectory(docs, account.DenyAll{}, logging.Discard(), account.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	acc, err := dir.Register(context.Background(), account.AccountDraft{
		FullName: "Asha Patel", Email: "a@x.com", Password: "secret123", Role: account.RolePatient,
	})
	require.NoError(t, err)
	return fixture{docs: docs, dir: dir, acc: acc}
}

func (f fixture) tab(prefix string) *Store {
	return NewStore(store.Namespace(f.docs, prefix), f.dir, testCfg, logging.Discard()).WithTokenIndex(f.docs)
}

func TestRestoreAfterReload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.tab("ctx:1:").Start(ctx, f.acc)
	require.NoError(t, err)

	// a fresh Store over the same documents is a page reload
	reloaded := f.tab("ctx:1:")
	got, ok := reloaded.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, started.AccountID, got.AccountID)
	assert.Equal(t, account.RolePatient, got.Role)

	again, ok := reloaded.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestRestoreWithoutSession(t *testing.T) {
	f := newFixture(t)
	_, ok := f.tab("ctx:empty:").Restore(context.Background())
	assert.False(t, ok)
}

func TestRestoreClearsCorruptPayload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"accountId":`},
		{"wrong shape", `["a","b"]`},
		{"missing token", `{"accountId":"abc","issuedAt":"2025-01-01T00:00:00Z"}`},
		{"forged token", `{"accountId":"abc","issuedAt":"2025-01-01T00:00:00Z","token":"eyJhbGciOiJub25lIn0.e30."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.docs.Corrupt("ctx:x:"+currentKey, []byte(tt.raw))

			sess := f.tab("ctx:x:")
			_, ok := sess.Restore(ctx)
			assert.False(t, ok)

			doc, err := f.docs.Get(ctx, "ctx:x:"+currentKey)
			require.NoError(t, err)
			assert.False(t, doc.Exists(), "corrupt session should be cleared")
		})
	}
}

func TestRestoreRejectsExpiredSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	tab := f.tab("ctx:1:").WithClock(func() time.Time { return now })
	_, err := tab.Start(ctx, f.acc)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, ok := tab.Restore(ctx)
	assert.False(t, ok)
}

func TestRestoreRejectsTokenForAnotherAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tab := f.tab("ctx:1:")

	sess, err := tab.Start(ctx, f.acc)
	require.NoError(t, err)

	sess.AccountID = "someone-else"
	w, err := store.Put(currentKey, sess, store.AnyVersion)
	require.NoError(t, err)
	require.NoError(t, store.Namespace(f.docs, "ctx:1:").Commit(ctx, w))

	_, ok := tab.Restore(ctx)
	assert.False(t, ok)
}

func TestSecondStartOverwritesFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doctor, err := f.dir.Register(ctx, account.AccountDraft{
		FullName: "Dr. Y", Email: "y@x.com", Password: "secret123", Role: account.RoleDoctor, Specialty: "Endodontist",
	})
	require.NoError(t, err)

	tab := f.tab("ctx:1:")
	_, err = tab.Start(ctx, f.acc)
	require.NoError(t, err)
	_, err = tab.Start(ctx, doctor)
	require.NoError(t, err)

	got, ok := tab.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, doctor.ID, got.AccountID)
	assert.Equal(t, account.RoleDoctor, got.Role)
}

func TestEndAndIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	one, two := f.tab("ctx:1:"), f.tab("ctx:2:")

	sess, err := one.Start(ctx, f.acc)
	require.NoError(t, err)

	_, ok := two.Restore(ctx)
	assert.False(t, ok)

	got, ok := two.Identify(ctx, sess.Token)
	require.True(t, ok)
	assert.Equal(t, f.acc.ID, got.AccountID)

	require.NoError(t, one.End(ctx))
	_, ok = one.Restore(ctx)
	assert.False(t, ok)
	require.NoError(t, one.End(ctx))

	_, ok = two.Identify(ctx, sess.Token)
	assert.False(t, ok, "ended session token must not identify")
}

func TestSecondStartRevokesFirstToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tab := f.tab("ctx:1:")

	first, err := tab.Start(ctx, f.acc)
	require.NoError(t, err)
	second, err := tab.Start(ctx, f.acc)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, ok := f.tab("ctx:2:").Identify(ctx, first.Token)
	assert.False(t, ok)
	got, ok := f.tab("ctx:2:").Identify(ctx, second.Token)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestRevokeFromAnotherContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tab := f.tab("ctx:1:")

	sess, err := tab.Start(ctx, f.acc)
	require.NoError(t, err)

	require.NoError(t, f.tab("ctx:2:").Revoke(ctx, sess.Token))

	_, ok := tab.Identify(ctx, sess.Token)
	assert.False(t, ok)
	_, ok = tab.Restore(ctx)
	assert.False(t, ok, "revoked token also ends the cookie session")

	assert.NoError(t, tab.Revoke(ctx, "not-a-token"))
}
