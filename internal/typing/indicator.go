// Package typing keeps a chat typing indicator alive while a reply is being
// produced.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the indicator is re-sent. Teams clears a
// typing indicator after a few seconds.
const DefaultInterval = 3 * time.Second

// DefaultTTL caps how long a single indicator loop may run.
const DefaultTTL = 2 * time.Minute

// SendFunc emits one typing activity.
type SendFunc func(ctx context.Context) error

// Config configures an Indicator.
type Config struct {
	Interval time.Duration
	TTL      time.Duration
	Logger   *slog.Logger
}

// Indicator starts typing loops.
type Indicator struct {
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// New creates an Indicator. Zero values take the defaults.
func New(cfg Config) *Indicator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Indicator{
		interval: cfg.Interval,
		ttl:      cfg.TTL,
		logger:   cfg.Logger.With("component", "typing"),
	}
}

// Start sends an indicator immediately and then every interval until the
// returned stop function is called, ctx is done, the TTL elapses, or a send
// fails. Sends are best effort. Stop blocks until the loop has exited and is
// safe to call more than once.
func (i *Indicator) Start(ctx context.Context, send SendFunc) (stop func()) {
	loopCtx, cancel := context.WithTimeout(ctx, i.ttl)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()

		for {
			if err := send(loopCtx); err != nil {
				if loopCtx.Err() == nil {
					i.logger.Debug("typing indicator failed", "error", err)
				}
				return
			}
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
