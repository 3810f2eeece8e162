package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"product-import-service/internal/models"
)

const (
	// DefaultLease outlives the longest bulk extraction
	DefaultLease = 10 * time.Minute
	// DefaultPollInterval is how often a waiting caller re-reads the store
	DefaultPollInterval = 250 * time.Millisecond
)

// GuardConfig holds guard timing. Zero values select the defaults.
type GuardConfig struct {
	TTL          time.Duration
	Lease        time.Duration
	PollInterval time.Duration
}

// ComputeFunc produces the result of an import that has no cached answer
type ComputeFunc func(ctx context.Context) (*models.ImportResult, error)

// Guard short-circuits repeated import submissions. Concurrent calls with the
// same key share one computation and only successful results are stored.
// Calls in one process are collapsed by singleflight; calls across instances
// sharing a store are serialized by the store reservation.
type Guard struct {
	store  Store
	ttl    time.Duration
	lease  time.Duration
	poll   time.Duration
	group  singleflight.Group
	logger *logrus.Entry
}

// NewGuard creates a guard over store. A zero ttl selects DefaultTTL.
func NewGuard(store Store, ttl time.Duration, logger *logrus.Logger) *Guard {
	return NewGuardWithConfig(store, GuardConfig{TTL: ttl}, logger)
}

// NewGuardWithConfig creates a guard with explicit lease and poll timing
func NewGuardWithConfig(store Store, cfg GuardConfig, logger *logrus.Logger) *Guard {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultLease
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Guard{
		store:  store,
		ttl:    cfg.TTL,
		lease:  cfg.Lease,
		poll:   cfg.PollInterval,
		logger: logger.WithField("component", "idempotency_guard"),
	}
}

// Do returns the stored result of key when one is fresh, otherwise runs
// compute once for all concurrent callers. The boolean reports whether the
// result came from the store or another caller's computation.
func (g *Guard) Do(ctx context.Context, key string, compute ComputeFunc) (*models.ImportResult, bool, error) {
	if cached, ok := g.lookup(ctx, key); ok {
		return cached, true, nil
	}

	leader, stored := false, false
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		leader = true
		// A call that finished between lookup and Do already stored its result
		if cached, ok := g.lookup(ctx, key); ok {
			stored = true
			return cached, nil
		}

		result, fromStore, err := g.computeReserved(ctx, key, compute)
		if err != nil {
			return nil, err
		}
		stored = fromStore
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}

	result, _ := v.(*models.ImportResult)
	if result == nil {
		return nil, false, nil
	}
	result = result.Clone()
	cached := stored || !leader
	result.Metadata.Cached = cached
	return result, cached, nil
}

// computeReserved runs compute while holding the store reservation for key.
// When another instance holds it, the caller waits for that instance's result
// and takes over the reservation if it is released without one.
func (g *Guard) computeReserved(ctx context.Context, key string, compute ComputeFunc) (*models.ImportResult, bool, error) {
	token := uuid.NewString()
	log := g.logger.WithField("key", key)

	for {
		reserved, err := g.store.Reserve(ctx, key, token, g.lease)
		if err != nil {
			log.WithError(err).Warn("Idempotency reservation failed")
			reserved = true
		}
		if reserved {
			defer func() {
				if err := g.store.Release(context.WithoutCancel(ctx), key, token); err != nil {
					log.WithError(err).Warn("Failed to release idempotency reservation")
				}
			}()

			result, err := compute(ctx)
			if err != nil {
				return nil, false, err
			}
			if result != nil && result.Success {
				if err := g.store.Set(ctx, key, result, g.ttl); err != nil {
					log.WithError(err).Warn("Failed to store import result")
				}
			}
			return result, false, nil
		}

		log.Debug("Import in flight elsewhere, waiting for its result")
		timer := time.NewTimer(g.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-timer.C:
		}

		if cached, ok := g.lookup(ctx, key); ok {
			return cached, true, nil
		}
	}
}

// Forget drops the stored result of key
func (g *Guard) Forget(ctx context.Context, key string) error {
	return g.store.Delete(ctx, key)
}

func (g *Guard) lookup(ctx context.Context, key string) (*models.ImportResult, bool) {
	cached, ok, err := g.store.Get(ctx, key)
	if err != nil {
		// A store outage degrades to recomputing
		g.logger.WithError(err).WithField("key", key).Warn("Idempotency lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	cached.Metadata.Cached = true
	return cached, true
}
