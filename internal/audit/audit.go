// Package audit keeps a bounded, best-effort event log in the document store.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

const (
	EventAccountRegistered    = "ACCOUNT_REGISTERED"
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentMoved     = "APPOINTMENT_RESCHEDULED"
	EventAppointmentAssigned  = "APPOINTMENT_ASSIGNED"
	EventAppointmentAnnotated = "APPOINTMENT_ANNOTATED"
	EventAppointmentRemoved   = "APPOINTMENT_REMOVED"
)

const (
	eventsKey   = "events"
	maxEvents   = 500
	maxAttempts = 3
)

type Event struct {
	Type      string          `json:"type"`
	SubjectID string          `json:"subjectId"`
	ActorID   string          `json:"actorId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Log appends events to the `events` document. A nil *Log drops everything.
type Log struct {
	docs   store.Store
	logger *logging.Logger
	now    func() time.Time
}

func NewLog(docs store.Store, logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{docs: docs, logger: logger, now: time.Now}
}

// Record writes one event. Failures are logged and swallowed.
func (l *Log) Record(ctx context.Context, eventType, subjectID, actorID string, payload map[string]any) {
	if l == nil {
		return
	}

	var data json.RawMessage
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			l.logger.Warn("failed to marshal event payload", "event", eventType, "error", err)
		} else {
			data = raw
		}
	}

	ev := Event{
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Payload:   data,
		CreatedAt: l.now().UTC(),
	}

	if err := l.append(ctx, ev); err != nil {
		l.logger.Error("failed to record event", "event", eventType, "subject", subjectID, "error", err)
	}
}

func (l *Log) append(ctx context.Context, ev Event) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, err := l.docs.Get(ctx, eventsKey)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}

		var events []Event
		if doc.Exists() {
			if err := json.Unmarshal(doc.Value, &events); err != nil {
				l.logger.Error("event log corrupt, resetting", "error", err)
				events = nil
			}
		}

		events = append(events, ev)
		if len(events) > maxEvents {
			events = events[len(events)-maxEvents:]
		}

		w, err := store.Put(eventsKey, events, doc.Version)
		if err != nil {
			return err
		}
		err = l.docs.Commit(ctx, w)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		return err
	}
	return store.ErrVersionConflict
}

// Recent returns up to limit of the newest events, newest last.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	doc, err := l.docs.Get(ctx, eventsKey)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	var events []Event
	if err := json.Unmarshal(doc.Value, &events); err != nil {
		return nil, nil
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
