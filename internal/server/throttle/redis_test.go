package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLimiter(db, time.Minute)

	mock.ExpectSetNX("eventhub:sms-send:+1555", 1, time.Minute).SetVal(true)
	mock.ExpectSetNX("eventhub:sms-send:+1555", 1, time.Minute).SetVal(false)

	ok, err := l.Allow(context.Background(), "+1555")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(context.Background(), "+1555")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLimiter(db, time.Minute)

	mock.ExpectSetNX("eventhub:sms-send:+1555", 1, time.Minute).SetErr(errors.New("connection refused"))

	ok, err := l.Allow(context.Background(), "+1555")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "redis setnx: connection refused")
}

func TestConnect(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	c, err = Connect("cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Options().Addr)
	_ = c.Close()

	_, err = Connect("redis://localhost:6379/notanumber")
	assert.Error(t, err)
}

func TestRedisLimiter_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLimiter(db, time.Minute)

	mock.ExpectDel("eventhub:sms-send:+1555").SetVal(1)
	mock.ExpectDel("eventhub:sms-send:+1555").SetErr(errors.New("connection refused"))

	require.NoError(t, l.Release(context.Background(), "+1555"))
	assert.ErrorContains(t, l.Release(context.Background(), "+1555"), "redis del: connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_NonPositiveIntervalNeverClaims(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		db, mock := redismock.NewClientMock()
		l := NewRedisLimiter(db, interval)

		for range 3 {
			ok, err := l.Allow(context.Background(), "+1555")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		require.NoError(t, l.Release(context.Background(), "+1555"))

		// no command may reach Redis: a SETNX without TTL would never expire
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}
