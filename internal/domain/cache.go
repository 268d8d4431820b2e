package domain

import (
	"context"
	"time"
)

// PriceCache keeps the last good USD quote per reference asset (bitcoin,
// stacks) with the time it was fetched. GetPrice reports an absent or
// expired quote as ErrNotFound; GetPrices omits such assets.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// LockManager hands out a cross-process mutex. Acquire fails with
// ErrLockHeld when another holder owns key; the returned unlock releases it
// only while this holder still owns it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one stored cycle-report entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans out sync events. Publish is fire-and-forget pub/sub;
// StreamAppend keeps a capped history that StreamRecent reads back newest
// first.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// RateLimiter admits at most limit calls per key within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
