package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

const appointmentsKey = "appointments"

// bucketRef names the slots of one doctor on one date. Its document version is
// the optimistic guard for claims in that bucket.
type bucketRef struct {
	DoctorRef string
	Date      string
}

func (b bucketRef) key() string {
	return fmt.Sprintf("slots/%s/%s", b.DoctorRef, b.Date)
}

type bucketDoc struct {
	Held []string `json:"held"`
}

// Snapshot is the appointments collection as read at Version.
type Snapshot struct {
	Appointments []Appointment
	Version      int64
}

// Repository contains all persistence needed by the registry.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	BucketVersion(ctx context.Context, ref bucketRef) (int64, error)

	// Save writes the collection and the held-slot index of every bucket in
	// buckets in one commit. Any stale version fails with store.ErrVersionConflict.
	Save(ctx context.Context, snap Snapshot, buckets map[bucketRef]int64) error
}

type DocRepository struct {
	docs   store.Store
	logger *logging.Logger
}

func NewDocRepository(docs store.Store, logger *logging.Logger) *DocRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &DocRepository{docs: docs, logger: logger}
}

func (r *DocRepository) Load(ctx context.Context) (Snapshot, error) {
	doc, err := r.docs.Get(ctx, appointmentsKey)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load appointments: %w", err)
	}
	if !doc.Exists() {
		return Snapshot{Version: doc.Version}, nil
	}

	var appts []Appointment
	if err := json.Unmarshal(doc.Value, &appts); err == nil {
		return Snapshot{Appointments: appts, Version: doc.Version}, nil
	}

	r.logger.Error("appointments document corrupt, resetting", "error", apperr.ErrStorageCorruption, "version", doc.Version)
	w, err := store.Put(appointmentsKey, []Appointment{}, doc.Version)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.docs.Commit(ctx, w); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return r.Load(ctx)
		}
		return Snapshot{}, fmt.Errorf("reset appointments: %w", err)
	}
	return Snapshot{Version: doc.Version + 1}, nil
}

func (r *DocRepository) BucketVersion(ctx context.Context, ref bucketRef) (int64, error) {
	doc, err := r.docs.Get(ctx, ref.key())
	if err != nil {
		return 0, fmt.Errorf("load bucket %s: %w", ref.key(), err)
	}
	return doc.Version, nil
}

func (r *DocRepository) Save(ctx context.Context, snap Snapshot, buckets map[bucketRef]int64) error {
	appts := snap.Appointments
	if appts == nil {
		appts = []Appointment{}
	}
	w, err := store.Put(appointmentsKey, appts, snap.Version)
	if err != nil {
		return err
	}
	writes := []store.Write{w}

	for ref, version := range buckets {
		bw, err := store.Put(ref.key(), bucketDoc{Held: heldLabels(appts, ref)}, version)
		if err != nil {
			return err
		}
		writes = append(writes, bw)
	}

	return r.docs.Commit(ctx, writes...)
}

// heldSlots maps slot label -> appointment id for every holding appointment in
// ref, skipping exclude.
func heldSlots(appts []Appointment, ref bucketRef, exclude string) map[string]string {
	held := make(map[string]string)
	for _, a := range appts {
		if a.ID == exclude || !a.HoldsSlot() || a.bucket() != ref {
			continue
		}
		held[a.TimeSlot] = a.ID
	}
	return held
}

func heldLabels(appts []Appointment, ref bucketRef) []string {
	held := heldSlots(appts, ref, "")
	out := make([]string, 0, len(held))
	for label := range held {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
