package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/audit"
	"github.com/hackgods/dental-clinic-portal/internal/config"
	"github.com/hackgods/dental-clinic-portal/internal/db"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
)

// Seed accounts log in with this password.
const seedPassword = "portal-demo-pass"

var specialties = []string{
	"Endodontics",
	"Orthodontics",
	"Periodontics",
	"Prosthodontics",
	"Pediatric Dentistry",
	"Oral Surgery",
	"Cosmetic Dentistry",
	"General Dentistry",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("component", "seed")
	logger.Info("seed starting", "store", cfg.StoreDriver)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backend, err := db.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("backend connection error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	events := audit.NewLog(backend.Docs, logger)
	dir, err := account.NewDirectory(backend.Docs, account.NewSecretIssuer(cfg.AdminSecret), logger, account.WithAudit(events))
	if err != nil {
		logger.Error("directory init error", "error", err)
		os.Exit(1)
	}
	registry := appointment.NewRegistry(appointment.Deps{
		Repo:     appointment.NewDocRepository(backend.Docs, logger),
		Accounts: dir,
		Policy:   appointment.NewPolicy(appointment.PolicyConfig{Location: cfg.Location, CancelLeadTime: cfg.CancelLeadTime}),
		Locker:   backend.Locker,
		Events:   events,
		Logger:   logger,
	}, appointment.Config{ClaimRetries: cfg.ClaimRetries})

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{faker: faker, dir: dir, registry: registry, logger: logger}

	if cfg.AdminSecret != "" {
		if _, err := s.register(ctx, account.RoleAdmin, "admin@clinic.test", "", cfg.AdminSecret); err != nil {
			logger.Error("seed admin", "error", err)
			os.Exit(1)
		}
	}

	doctors, err := s.accounts(ctx, account.RoleDoctor, getInt("SEED_DOCTORS", 8))
	if err != nil {
		logger.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	patients, err := s.accounts(ctx, account.RolePatient, getInt("SEED_PATIENTS", 60))
	if err != nil {
		logger.Error("seed patients", "error", err)
		os.Exit(1)
	}

	booked, conflicts, err := s.appointments(ctx, doctors, patients, getInt("SEED_APPOINTMENTS", 120), registry.Policy())
	if err != nil {
		logger.Error("seed appointments", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete",
		"doctors", len(doctors),
		"patients", len(patients),
		"appointments", booked,
		"slot_conflicts", conflicts,
		"password", seedPassword,
	)
}

type seeder struct {
	faker    *gofakeit.Faker
	dir      *account.Directory
	registry *appointment.Registry
	logger   *logging.Logger
}

func (s *seeder) register(ctx context.Context, role account.Role, email, specialty, secret string) (account.Account, error) {
	acc, err := s.dir.Register(ctx, account.AccountDraft{
		FullName:       s.faker.Name(),
		Email:          email,
		Phone:          s.faker.Phone(),
		Password:       seedPassword,
		Role:           role,
		Specialty:      specialty,
		IssuanceSecret: secret,
	})
	if errors.Is(err, apperr.ErrDuplicateEmail) {
		s.logger.Info("account already present, skipping", "email", email)
		return account.Account{}, nil
	}
	return acc, err
}

func (s *seeder) accounts(ctx context.Context, role account.Role, count int) ([]account.Account, error) {
	s.logger.Info("seeding accounts", "role", role.String(), "count", count)

	out := make([]account.Account, 0, count)
	for i := 0; i < count; i++ {
		specialty := ""
		if role == account.RoleDoctor {
			specialty = specialties[s.faker.Number(0, len(specialties)-1)]
		}
		email := fmt.Sprintf("%s.%d@%s", s.faker.Username(), i, "clinic.test")
		acc, err := s.register(ctx, role, email, specialty, "")
		if err != nil {
			return nil, err
		}
		if acc.ID != "" {
			out = append(out, acc)
		}
	}
	return out, nil
}

// appointments books random slots over the next two weeks. Half are booked by
// the patient and stay Pending; the rest by the doctor and start Confirmed.
func (s *seeder) appointments(ctx context.Context, doctors, patients []account.Account, count int, policy *appointment.Policy) (int, int, error) {
	if len(doctors) == 0 || len(patients) == 0 {
		return 0, 0, nil
	}
	s.logger.Info("seeding appointments", "count", count)

	grid := appointment.Grid()
	services := make([]string, 0, len(policy.Catalog()))
	for id := range policy.Catalog() {
		services = append(services, id)
	}

	booked, conflicts := 0, 0
	for i := 0; i < count; i++ {
		doctor := doctors[s.faker.Number(0, len(doctors)-1)]
		patient := patients[s.faker.Number(0, len(patients)-1)]
		req := appointment.BookingRequest{
			PatientRef: patient.ID,
			DoctorRef:  doctor.ID,
			ServiceID:  services[s.faker.Number(0, len(services)-1)],
			Date:       policy.Now().AddDate(0, 0, s.faker.Number(1, 14)).Format("2006-01-02"),
			TimeSlot:   grid[s.faker.Number(0, len(grid)-1)].Label,
			Notes:      s.faker.Sentence(6),
		}

		actor := appointment.Actor{AccountID: patient.ID, Role: account.RolePatient}
		if s.faker.Bool() {
			actor = appointment.Actor{AccountID: doctor.ID, Role: account.RoleDoctor}
		}

		_, err := s.registry.Create(ctx, actor, req)
		switch {
		case err == nil:
			booked++
		case errors.Is(err, apperr.ErrSlotConflict), errors.Is(err, apperr.ErrValidation):
			// taken, or the service does not fit that slot
			conflicts++
		default:
			return booked, conflicts, err
		}
	}
	return booked, conflicts, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
