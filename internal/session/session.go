// Package session keeps the one authenticated identity of a client context.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

const (
	currentKey  = "session.current"
	tokenPrefix = "sessions/"
)

// Session is the persisted record of who is logged in.
type Session struct {
	ID        string       `json:"id"`
	AccountID string       `json:"accountId"`
	Role      account.Role `json:"role"`
	IssuedAt  time.Time    `json:"issuedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Token     string       `json:"token"`
}

// AccountLookup is satisfied by *account.Directory.
type AccountLookup interface {
	Lookup(ctx context.Context, id string) (account.Account, bool, error)
}

type Config struct {
	Secret []byte
	TTL    time.Duration
}

// activeToken marks a token as live. Tokens without one are rejected even
// when their signature and expiry check out.
type activeToken struct {
	AccountID string    `json:"accountId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists the session of one client context. Construct it over a
// namespaced document store so each context has its own `session.current`;
// live tokens are indexed in a store shared by all contexts (WithTokenIndex).
type Store struct {
	docs     store.Store
	index    store.Store
	accounts AccountLookup
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

func NewStore(docs store.Store, accounts AccountLookup, cfg Config, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Store{
		docs:     docs,
		index:    docs,
		accounts: accounts,
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithTokenIndex sets the store holding the live-token index. It must be
// shared by every client context so bearer tokens resolve anywhere.
func (s *Store) WithTokenIndex(index store.Store) *Store {
	s.index = index
	return s
}

// Start persists a session for acc, replacing any existing one. The replaced
// session's token stops working.
func (s *Store) Start(ctx context.Context, acc account.Account) (Session, error) {
	previous := s.stored(ctx)

	issued := s.now().UTC().Truncate(time.Second)
	sess := Session{
		ID:        uuid.NewString(),
		AccountID: acc.ID,
		Role:      acc.Role,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(s.cfg.TTL),
	}

	token, err := makeToken(sess.ID, acc.ID, acc.Role.String(), sess.IssuedAt, sess.ExpiresAt, s.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	sess.Token = token

	iw, err := store.Put(tokenPrefix+sess.ID, activeToken{AccountID: acc.ID, Token: token, ExpiresAt: sess.ExpiresAt}, store.AnyVersion)
	if err != nil {
		return Session{}, err
	}
	if err := s.index.Commit(ctx, iw); err != nil {
		return Session{}, fmt.Errorf("index session: %w", err)
	}

	w, err := store.Put(currentKey, sess, store.AnyVersion)
	if err != nil {
		return Session{}, err
	}
	if err := s.docs.Commit(ctx, w); err != nil {
		s.revokeID(ctx, sess.ID)
		return Session{}, fmt.Errorf("persist session: %w", err)
	}

	if previous.ID != "" && previous.ID != sess.ID {
		s.revokeID(ctx, previous.ID)
	}
	return sess, nil
}

// Restore rehydrates the persisted session. Anything that fails validation is
// cleared and reported as logged out; Restore never returns an error.
func (s *Store) Restore(ctx context.Context) (Session, bool) {
	doc, err := s.docs.Get(ctx, currentKey)
	if err != nil {
		s.logger.Warn("session restore failed", "error", err)
		return Session{}, false
	}
	if !doc.Exists() {
		return Session{}, false
	}

	sess, reason := s.validate(ctx, doc.Value)
	if reason != "" {
		s.logger.Info("discarding persisted session", "reason", reason)
		s.clear(ctx)
		return Session{}, false
	}
	return sess, true
}

func (s *Store) validate(ctx context.Context, raw json.RawMessage) (Session, string) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, "malformed payload"
	}
	if sess.AccountID == "" || sess.Token == "" || sess.IssuedAt.IsZero() {
		return Session{}, "missing fields"
	}

	claims, err := parseToken(sess.Token, s.cfg.Secret, s.now())
	if err != nil {
		return Session{}, "token rejected: " + err.Error()
	}
	if claims.AccountID != sess.AccountID {
		return Session{}, "token subject mismatch"
	}
	if !s.active(ctx, claims.ID, sess.Token) {
		return Session{}, "token revoked"
	}
	sess.ID = claims.ID

	acc, ok, err := s.accounts.Lookup(ctx, sess.AccountID)
	if err != nil {
		return Session{}, "account lookup failed"
	}
	if !ok {
		return Session{}, "account no longer exists"
	}
	sess.Role = acc.Role
	return sess, ""
}

// Identify resolves a bearer token without touching the persisted session.
// Only tokens of sessions that were not ended or replaced resolve.
func (s *Store) Identify(ctx context.Context, token string) (Session, bool) {
	claims, err := parseToken(token, s.cfg.Secret, s.now())
	if err != nil {
		return Session{}, false
	}
	if !s.active(ctx, claims.ID, token) {
		return Session{}, false
	}
	acc, ok, err := s.accounts.Lookup(ctx, claims.AccountID)
	if err != nil || !ok {
		return Session{}, false
	}
	sess := Session{ID: claims.ID, AccountID: acc.ID, Role: acc.Role, Token: token}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, true
}

// End clears the persisted session and revokes its token.
func (s *Store) End(ctx context.Context) error {
	previous := s.stored(ctx)
	if err := s.docs.Commit(ctx, store.Remove(currentKey, store.AnyVersion)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if previous.ID != "" {
		return s.revoke(ctx, previous.ID)
	}
	return nil
}

// Revoke invalidates a token issued by Start, whichever context holds it.
// Unparseable tokens are ignored.
func (s *Store) Revoke(ctx context.Context, token string) error {
	claims, err := parseToken(token, s.cfg.Secret, s.now())
	if err != nil || claims.ID == "" {
		return nil
	}
	return s.revoke(ctx, claims.ID)
}

func (s *Store) revoke(ctx context.Context, id string) error {
	if err := s.index.Commit(ctx, store.Remove(tokenPrefix+id, store.AnyVersion)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) revokeID(ctx context.Context, id string) {
	if err := s.revoke(ctx, id); err != nil {
		s.logger.Warn("failed to revoke session token", "error", err)
	}
}

// active reports whether the index still holds token under id.
func (s *Store) active(ctx context.Context, id, token string) bool {
	if id == "" {
		return false
	}
	doc, err := s.index.Get(ctx, tokenPrefix+id)
	if err != nil {
		s.logger.Warn("session index lookup failed", "error", err)
		return false
	}
	if !doc.Exists() {
		return false
	}
	var at activeToken
	if err := json.Unmarshal(doc.Value, &at); err != nil {
		return false
	}
	return at.Token == token
}

// stored returns the persisted session as written, without validating it.
func (s *Store) stored(ctx context.Context) Session {
	doc, err := s.docs.Get(ctx, currentKey)
	if err != nil || !doc.Exists() {
		return Session{}
	}
	var sess Session
	_ = json.Unmarshal(doc.Value, &sess)
	return sess
}

func (s *Store) clear(ctx context.Context) {
	if err := s.End(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to clear session", "error", err)
	}
}
