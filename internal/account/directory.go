package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/audit"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/metrics"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

const (
	accountsKey       = "accounts"
	minPasswordLength = 8
	maxCommitAttempts = 3
)

// Directory is the account registry. It owns email uniqueness.
type Directory struct {
	docs      store.Store
	issuer    CredentialIssuer
	logger    *logging.Logger
	events    *audit.Log
	metrics   *metrics.PortalMetrics
	now       func() time.Time
	cost      int
	dummyHash string
}

type Option func(*Directory)

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

func WithAudit(events *audit.Log) Option {
	return func(d *Directory) { d.events = events }
}

func WithMetrics(m *metrics.PortalMetrics) Option {
	return func(d *Directory) { d.metrics = m }
}

func NewDirectory(docs store.Store, issuer CredentialIssuer, logger *logging.Logger, opts ...Option) (*Directory, error) {
	if issuer == nil {
		issuer = DenyAll{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Directory{
		docs:   docs,
		issuer: issuer,
		logger: logger.With("component", "directory"),
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Unknown emails are checked against this hash so failures cost the same.
	dummy, err := hashPassword("not-a-real-password", d.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	d.dummyHash = dummy
	return d, nil
}

// Register validates the draft and stores a new account.
func (d *Directory) Register(ctx context.Context, draft AccountDraft) (Account, error) {
	acc, err := d.register(ctx, draft)
	outcome := "ok"
	if err != nil {
		outcome = apperr.Kind(err)
	}
	d.metrics.ObserveRegistration(draft.Role.String(), outcome)
	return acc, err
}

func (d *Directory) register(ctx context.Context, draft AccountDraft) (Account, error) {
	email := NormalizeEmail(draft.Email)
	if email != "" {
		accounts, _, err := d.load(ctx)
		if err != nil {
			return Account{}, err
		}
		if emailTaken(accounts, email) {
			return Account{}, fmt.Errorf("%w: %s", apperr.ErrDuplicateEmail, email)
		}
	}
	if err := validateDraft(draft, email); err != nil {
		return Account{}, err
	}

	if draft.Role == RoleAdmin && !d.issuer.Verify(draft.IssuanceSecret) {
		return Account{}, fmt.Errorf("%w: admin issuance secret rejected", apperr.ErrAuthorizationDenied)
	}

	hash, err := hashPassword(draft.Password, d.cost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	acc := Account{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(draft.FullName),
		Email:        email,
		Phone:        strings.TrimSpace(draft.Phone),
		PasswordHash: hash,
		Role:         draft.Role,
		CreatedAt:    d.now().UTC(),
	}
	if draft.Role == RoleDoctor {
		acc.Specialty = strings.TrimSpace(draft.Specialty)
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		accounts, version, err := d.load(ctx)
		if err != nil {
			return Account{}, err
		}

		if emailTaken(accounts, email) {
			return Account{}, fmt.Errorf("%w: %s", apperr.ErrDuplicateEmail, email)
		}

		w, err := store.Put(accountsKey, append(accounts, acc), version)
		if err != nil {
			return Account{}, err
		}
		err = d.docs.Commit(ctx, w)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Account{}, fmt.Errorf("save account: %w", err)
		}

		d.logger.Info("account registered", "account_id", acc.ID, "role", acc.Role.String())
		d.events.Record(ctx, audit.EventAccountRegistered, acc.ID, acc.ID, map[string]any{
			"role": acc.Role.String(),
		})
		return acc, nil
	}

	return Account{}, fmt.Errorf("save account: %w", store.ErrVersionConflict)
}

func emailTaken(accounts []Account, email string) bool {
	for _, existing := range accounts {
		if NormalizeEmail(existing.Email) == email {
			return true
		}
	}
	return false
}

func validateDraft(draft AccountDraft, email string) error {
	var problems []string
	if strings.TrimSpace(draft.FullName) == "" {
		problems = append(problems, "full name is required")
	}
	if email == "" {
		problems = append(problems, "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		problems = append(problems, "email is malformed")
	}
	if len(draft.Password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	switch draft.Role {
	case RolePatient, RoleAdmin:
	case RoleDoctor:
		if strings.TrimSpace(draft.Specialty) == "" {
			problems = append(problems, "doctors must declare a specialty")
		}
	default:
		problems = append(problems, "role must be patient, doctor or admin")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Authenticate returns the account for a matching email and password. The error
// is the same whether the email is unknown or the password is wrong.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (Account, error) {
	accounts, _, err := d.load(ctx)
	if err != nil {
		return Account{}, err
	}

	normalized := NormalizeEmail(email)
	var found *Account
	for i := range accounts {
		if NormalizeEmail(accounts[i].Email) == normalized {
			found = &accounts[i]
			break
		}
	}

	if found == nil {
		checkPassword(d.dummyHash, password)
		d.metrics.ObserveLogin("invalid_credentials")
		return Account{}, apperr.ErrInvalidCredentials
	}
	if !checkPassword(found.PasswordHash, password) {
		d.metrics.ObserveLogin("invalid_credentials")
		return Account{}, apperr.ErrInvalidCredentials
	}

	d.metrics.ObserveLogin("ok")
	return *found, nil
}

// Lookup finds an account by id.
func (d *Directory) Lookup(ctx context.Context, id string) (Account, bool, error) {
	accounts, _, err := d.load(ctx)
	if err != nil {
		return Account{}, false, err
	}
	for _, acc := range accounts {
		if acc.ID == id {
			return acc, true, nil
		}
	}
	return Account{}, false, nil
}

// List returns accounts with the given role, or all accounts for RoleUnknown.
func (d *Directory) List(ctx context.Context, role Role) ([]Account, error) {
	accounts, _, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if role == RoleUnknown {
		return accounts, nil
	}
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Role == role {
			out = append(out, acc)
		}
	}
	return out, nil
}

// load reads the accounts document. A document that does not decode is reset
// to an empty collection.
func (d *Directory) load(ctx context.Context) ([]Account, int64, error) {
	doc, err := d.docs.Get(ctx, accountsKey)
	if err != nil {
		return nil, 0, fmt.Errorf("load accounts: %w", err)
	}
	if !doc.Exists() {
		return nil, doc.Version, nil
	}

	var accounts []Account
	if err := json.Unmarshal(doc.Value, &accounts); err == nil {
		return accounts, doc.Version, nil
	}

	d.logger.Error("accounts document corrupt, resetting", "error", apperr.ErrStorageCorruption, "version", doc.Version)
	w, err := store.Put(accountsKey, []Account{}, doc.Version)
	if err != nil {
		return nil, 0, err
	}
	if err := d.docs.Commit(ctx, w); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// someone else rewrote it first; reread
			return d.load(ctx)
		}
		return nil, 0, fmt.Errorf("reset accounts: %w", err)
	}
	return nil, doc.Version + 1, nil
}
