package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

func TestRecordAppendsAndBounds(t *testing.T) {
	ctx := context.Background()
	log := NewLog(store.NewMemoryStore(), logging.Discard())

	for i := 0; i < maxEvents+5; i++ {
		log.Record(ctx, EventAppointmentCreated, "appt", "actor", map[string]any{"i": i})
	}

	events, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, maxEvents)
	assert.JSONEq(t, `{"i":504}`, string(events[len(events)-1].Payload))
}

func TestRecordResetsCorruptLog(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Corrupt(eventsKey, []byte(`{not json`))

	log := NewLog(mem, logging.Discard())
	log.Record(ctx, EventAccountRegistered, "acc-1", "", nil)

	events, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventAccountRegistered, events[0].Type)
}

func TestNilLogIsNoop(t *testing.T) {
	var log *Log
	log.Record(context.Background(), EventAppointmentRemoved, "x", "y", nil)
}
