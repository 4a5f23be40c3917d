package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// StoreSuite runs the same contract against every backend that can run in-process.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return NewMemoryStore() }})
}

func TestRedisStoreSuite(t *testing.T) {
	mr := miniredis.RunT(t)
	suite.Run(t, &StoreSuite{newStore: func() Store {
		mr.FlushAll()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewRedisStore(client)
	}})
}

func (s *StoreSuite) TestMissingDocument() {
	doc, err := s.store.Get(context.Background(), "appointments")
	s.Require().NoError(err)
	s.False(doc.Exists())
	s.Equal(int64(0), doc.Version)
	s.Equal("appointments", doc.Key)
}

func (s *StoreSuite) TestVersionedWrites() {
	ctx := context.Background()

	s.Run("create requires expected version zero", func() {
		w, err := Put("accounts", []string{"a"}, 0)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Commit(ctx, w))

		doc, err := s.store.Get(ctx, "accounts")
		s.Require().NoError(err)
		s.Equal(int64(1), doc.Version)
		s.JSONEq(`["a"]`, string(doc.Value))
	})

	s.Run("stale version is rejected", func() {
		w, err := Put("accounts", []string{"b"}, 0)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Commit(ctx, w), ErrVersionConflict)

		doc, err := s.store.Get(ctx, "accounts")
		s.Require().NoError(err)
		s.JSONEq(`["a"]`, string(doc.Value))
	})

	s.Run("matching version increments", func() {
		w, err := Put("accounts", []string{"a", "b"}, 1)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Commit(ctx, w))

		doc, err := s.store.Get(ctx, "accounts")
		s.Require().NoError(err)
		s.Equal(int64(2), doc.Version)
	})
}

func (s *StoreSuite) TestCommitIsAllOrNothing() {
	ctx := context.Background()

	first, _ := Put("slots/d1/2025-12-18", map[string]any{"held": []string{}}, 0)
	s.Require().NoError(s.store.Commit(ctx, first))

	bucket, _ := Put("slots/d1/2025-12-18", map[string]any{"held": []string{"10:00 AM"}}, 1)
	appts, _ := Put("appointments", []string{"x"}, 7)
	s.Require().ErrorIs(s.store.Commit(ctx, bucket, appts), ErrVersionConflict)

	doc, err := s.store.Get(ctx, "slots/d1/2025-12-18")
	s.Require().NoError(err)
	s.Equal(int64(1), doc.Version)

	missing, err := s.store.Get(ctx, "appointments")
	s.Require().NoError(err)
	s.False(missing.Exists())
}

func (s *StoreSuite) TestAnyVersionAndDelete() {
	ctx := context.Background()

	w, _ := Put("session.current", map[string]string{"accountId": "a"}, AnyVersion)
	s.Require().NoError(s.store.Commit(ctx, w))
	w, _ = Put("session.current", map[string]string{"accountId": "b"}, AnyVersion)
	s.Require().NoError(s.store.Commit(ctx, w))

	doc, err := s.store.Get(ctx, "session.current")
	s.Require().NoError(err)
	var got map[string]string
	s.Require().NoError(json.Unmarshal(doc.Value, &got))
	s.Equal("b", got["accountId"])

	s.Require().NoError(s.store.Commit(ctx, Remove("session.current", AnyVersion)))
	doc, err = s.store.Get(ctx, "session.current")
	s.Require().NoError(err)
	s.False(doc.Exists())
}

func (s *StoreSuite) TestRejectsDuplicateKeysInCommit() {
	a, _ := Put("k", 1, 0)
	b, _ := Put("k", 2, 0)
	s.Error(s.store.Commit(context.Background(), a, b))
}

func (s *StoreSuite) TestNamespaceIsolatesKeys() {
	ctx := context.Background()
	tabA := Namespace(s.store, "ctx:a:")
	tabB := Namespace(s.store, "ctx:b:")

	w, _ := Put("session.current", map[string]string{"accountId": "a"}, AnyVersion)
	s.Require().NoError(tabA.Commit(ctx, w))

	doc, err := tabB.Get(ctx, "session.current")
	s.Require().NoError(err)
	s.False(doc.Exists())

	doc, err = tabA.Get(ctx, "session.current")
	s.Require().NoError(err)
	s.True(doc.Exists())
	s.Equal("session.current", doc.Key)
}
