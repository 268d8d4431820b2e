package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		KeyPrefix: "test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedis(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	t.Run("price cache", func(t *testing.T) {
		pc := NewPriceCache(c, time.Minute)
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, pc.SetPrice(ctx, "bitcoin", 50000.5, ts))
		price, got, err := pc.GetPrice(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, 50000.5, price)
		assert.True(t, ts.Equal(got))

		_, _, err = pc.GetPrice(ctx, "dogecoin")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		prices, err := pc.GetPrices(ctx, []string{"bitcoin", "dogecoin"})
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"bitcoin": 50000.5}, prices)

		ttl, err := c.Underlying().TTL(ctx, "test:price:bitcoin").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("lock", func(t *testing.T) {
		lm := NewLockManager(c)
		unlock, err := lm.Acquire(ctx, "cycle", time.Minute)
		require.NoError(t, err)

		_, err = lm.Acquire(ctx, "cycle", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)

		unlock()
		unlock()

		unlock2, err := lm.Acquire(ctx, "cycle", time.Minute)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("stale unlock keeps newer holder", func(t *testing.T) {
		lm := NewLockManager(c)
		unlock, err := lm.Acquire(ctx, "short", 50*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		unlock2, err := lm.Acquire(ctx, "short", time.Minute)
		require.NoError(t, err)
		defer unlock2()

		unlock()
		_, err = lm.Acquire(ctx, "short", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
	})

	t.Run("signal bus stream", func(t *testing.T) {
		sb := NewSignalBus(c, 100)

		msgs, err := sb.StreamRecent(ctx, "empty", 5)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		for i := range 3 {
			require.NoError(t, sb.StreamAppend(ctx, "cycles", []byte(fmt.Sprintf("c%d", i))))
		}
		msgs, err = sb.StreamRecent(ctx, "cycles", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "c2", string(msgs[0].Payload))
		assert.Equal(t, "c1", string(msgs[1].Payload))
	})

	t.Run("signal bus publish", func(t *testing.T) {
		sb := NewSignalBus(c, 0)
		sub := c.Underlying().Subscribe(ctx, "test:events")
		defer sub.Close()
		_, err := sub.Receive(ctx)
		require.NoError(t, err)

		require.NoError(t, sb.Publish(ctx, "events", []byte("hello")))

		select {
		case msg := <-sub.Channel():
			assert.Equal(t, "hello", msg.Payload)
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}
	})

	t.Run("rate limiter", func(t *testing.T) {
		rl := NewRateLimiter(c)
		for i := range 3 {
			ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}
		ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = rl.Allow(ctx, "client-b", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestClientOptions(t *testing.T) {
	opts, err := ClientConfig{Addr: "localhost:6379", PoolSize: 4, TLSEnabled: true}.options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 4, opts.PoolSize)
	require.NotNil(t, opts.TLSConfig)

	opts, err = ClientConfig{Addr: "redis://:pw@cache:6380/2", DB: 0}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = ClientConfig{Addr: "http://cache"}.options()
	assert.Error(t, err)
}

func TestKeyNamespace(t *testing.T) {
	c := &Client{prefix: "stx20sync:"}
	assert.Equal(t, "stx20sync:price:bitcoin", c.key("price", "bitcoin"))
	assert.Equal(t, "stx20sync:lock", c.key("lock"))
}
