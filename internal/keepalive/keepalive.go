// Package keepalive emits periodic liveness signals while a long operation is
// running, so supervisors that kill idle processes leave a multi-minute
// pipeline alone.
package keepalive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// The host is assumed to reap after ~30s idle; the primary signal fires
	// inside that window and the backup fires even earlier.
	primaryInterval = 25 * time.Second
	backupInterval  = 20 * time.Second
)

// Pinger is one liveness signal. Failures are logged, never propagated; a
// missed ping must not take down the operation it protects.
type Pinger func(ctx context.Context)

// Keeper runs two redundant pingers per tagged operation. All state is owned
// by the instance, so independent pipelines (and tests) get independent
// keepers.
type Keeper struct {
	logger  *zap.Logger
	primary Pinger
	backup  Pinger

	primaryEvery time.Duration
	backupEvery  time.Duration

	mu     sync.Mutex
	active map[string]chan struct{}
	wg     sync.WaitGroup
}

func New(logger *zap.Logger, primary, backup Pinger) *Keeper {
	return &Keeper{
		logger:       logger,
		primary:      primary,
		backup:       backup,
		primaryEvery: primaryInterval,
		backupEvery:  backupInterval,
		active:       make(map[string]chan struct{}),
	}
}

// Start begins signalling for tag and returns a cleanup function. Starting an
// already-active tag restarts its signals.
func (k *Keeper) Start(tag string) func() {
	k.mu.Lock()
	if stop, ok := k.active[tag]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	k.active[tag] = stop
	k.mu.Unlock()

	k.logger.Debug("keep-alive started", zap.String("tag", tag))

	k.run(tag, stop, k.primary, k.primaryEvery)
	k.run(tag, stop, k.backup, k.backupEvery)

	return func() { k.Stop(tag) }
}

// Stop tears down both signals for tag. Stopping an inactive tag is a no-op.
func (k *Keeper) Stop(tag string) {
	k.mu.Lock()
	stop, ok := k.active[tag]
	if ok {
		close(stop)
		delete(k.active, tag)
	}
	k.mu.Unlock()

	if ok {
		k.logger.Debug("keep-alive stopped", zap.String("tag", tag))
	}
}

// WithLiveness runs op under the tag's signals, guaranteeing teardown on
// every exit path.
func (k *Keeper) WithLiveness(ctx context.Context, tag string, op func(ctx context.Context) error) error {
	defer k.Start(tag)()
	return op(ctx)
}

// Wait blocks until all signal goroutines have exited. Intended for orderly
// shutdown and tests.
func (k *Keeper) Wait() {
	k.wg.Wait()
}

func (k *Keeper) run(tag string, stop <-chan struct{}, ping Pinger, every time.Duration) {
	if ping == nil {
		return
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), every)
				ping(ctx)
				cancel()
				k.logger.Debug("keep-alive ping", zap.String("tag", tag))
			}
		}
	}()
}
