package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/eventbus"
	"Distributed-Order-Saga/pkg/metrics"
)

// RelayConfig tunes the publish loop.
type RelayConfig struct {
	PollInterval   time.Duration // How often PENDING rows are polled.
	BatchSize      int           // Max rows drained per poll.
	MaxRetries     int           // Publish retries per row before it is marked FAILED.
	BackoffBase    time.Duration // Base duration for exponential backoff between retries.
	PublishTimeout time.Duration // Per-attempt publish timeout.
}

// DefaultRelayConfig returns the production defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   250 * time.Millisecond,
		BatchSize:      64,
		MaxRetries:     3,
		BackoffBase:    250 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Relay drains committed outbox rows and publishes them to the bus. Rows are
// published in commit order, one at a time, which preserves per-key event
// order. A row whose publish succeeded but whose MarkSent failed will be
// published again on the next poll; consumers already tolerate duplicates.
// A row whose publish attempts are exhausted stays PENDING and is picked up
// again on the next poll, so a long bus outage delays events instead of
// losing them.
type Relay struct {
	store Store
	bus   eventbus.Bus
	log   *logrus.Entry
	cfg   RelayConfig

	quitChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewRelay wires a relay to one owner's outbox store and the shared bus.
// Zero config fields fall back to DefaultRelayConfig values.
func NewRelay(store Store, bus eventbus.Bus, log *logrus.Entry, cfg RelayConfig) *Relay {
	def := DefaultRelayConfig()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	return &Relay{
		store:    store,
		bus:      bus,
		log:      log,
		cfg:      cfg,
		quitChan: make(chan struct{}),
	}
}

// Start launches the poll loop.
func (r *Relay) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		r.log.Info("Outbox relay started")
		for {
			select {
			case <-ticker.C:
				if err := r.RunOnce(context.Background()); err != nil {
					r.log.WithError(err).Error("Outbox relay poll failed")
				}
			case <-r.quitChan:
				// Final drain so rows committed just before shutdown
				// still go out.
				if err := r.RunOnce(context.Background()); err != nil {
					r.log.WithError(err).Error("Outbox relay final drain failed")
				}
				r.log.Info("Outbox relay stopped")
				return
			}
		}
	}()
}

// Stop signals the poll loop to drain once more and exit, then waits for it.
func (r *Relay) Stop() {
	r.once.Do(func() { close(r.quitChan) })
	r.wg.Wait()
}

// RunOnce drains one batch of PENDING rows synchronously. Exposed so tests
// and shutdown paths can force a deterministic drain.
func (r *Relay) RunOnce(ctx context.Context) error {
	records, err := r.store.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		r.publishRecord(ctx, rec)
	}
	return nil
}

// publishRecord attempts one row with retries and exponential backoff,
// mirroring the bus publisher's retry discipline. An exhausted row stays
// PENDING for the next poll.
func (r *Relay) publishRecord(ctx context.Context, rec *Record) {
	l := r.log.WithFields(logrus.Fields{
		"outbox_id": rec.ID,
		"topic":     rec.Topic,
		"event_key": rec.Key,
	})

	var pubErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		pubErr = r.bus.Publish(attemptCtx, rec.Topic, rec.Key, rec.Payload)
		cancel()
		if pubErr == nil {
			if err := r.store.MarkSent(ctx, rec.ID); err != nil {
				// Row stays PENDING and will be republished; consumers
				// are idempotent under the duplicate.
				l.WithError(err).Error("Published but failed to mark outbox row sent")
			} else {
				l.Info("Outbox event published")
			}
			return
		}

		if attempt == r.cfg.MaxRetries {
			break
		}
		metrics.OutboxRetries.Inc()
		backoff := r.cfg.BackoffBase * time.Duration(1<<uint(attempt-1)) // base * 2^(attempt-1)
		const maxBackoff = 10 * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		l.WithError(pubErr).Warnf("Publish failed (attempt %d/%d). Retrying in %v...", attempt, r.cfg.MaxRetries, backoff)

		select {
		case <-time.After(backoff):
		case <-r.quitChan:
			l.Warn("Quit signal received during retry backoff. Row stays pending.")
			return
		}
	}

	l.WithError(pubErr).Errorf("Publish failed after %d attempts. Row stays pending for the next poll.", r.cfg.MaxRetries)
}
