package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/config"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	redisclient "github.com/hackgods/dental-clinic-portal/internal/redis"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), config.Config{StoreDriver: config.DriverMemory}, logging.Discard())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.Docs)
	assert.IsType(t, &appointment.LocalLocker{}, b.Locker)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		StoreDriver: config.DriverRedis,
		RedisAddr:   mr.Addr(),
		LockTTL:     time.Second,
	}

	b, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.RedisStore{}, b.Docs)
	assert.IsType(t, &redisclient.Locker{}, b.Locker)
	require.NoError(t, b.Docs.Ping(context.Background()))
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), config.Config{StoreDriver: config.DriverRedis, RedisAddr: addr}, logging.Discard())
	assert.Error(t, err)
}
