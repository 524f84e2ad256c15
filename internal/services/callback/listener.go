package callback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"donation-agent/internal/status"
	"donation-agent/models"
	"donation-agent/monitoring"

	"github.com/rs/zerolog"
)

var ErrAlreadyStarted = errors.New("callback: listener already started")

// Target is whatever reconciles a matching callback with the flow.
type Target interface {
	HandleCallback(ctx context.Context, n models.Notification) error
}

// Listener holds one subscription for the lifetime of the process and turns
// raw notifications into calls on the target. Foreign URIs never reach it.
type Listener struct {
	source  Source
	matcher Matcher
	target  Target
	monitor *monitoring.Monitor
	log     zerolog.Logger

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	cancel      context.CancelFunc
	inflight    sync.WaitGroup
}

func NewListener(source Source, matcher Matcher, target Target, monitor *monitoring.Monitor, log zerolog.Logger) *Listener {
	return &Listener{
		source:  source,
		matcher: matcher,
		target:  target,
		monitor: monitor,
		log:     log,
	}
}

// Start subscribes to the source. Notifications are handled on their own
// goroutine so a slow status fetch never holds up the source.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	unsub, err := l.source.Subscribe(runCtx, func(raw string) {
		l.dispatch(runCtx, raw)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("listener: subscribe: %w", err)
	}

	l.running = true
	l.unsubscribe = unsub
	l.cancel = cancel
	l.log.Info().Msg("callback listener started")
	return nil
}

// Stop unsubscribes and waits for notifications already being handled.
// Calling it more than once is fine.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	unsub, cancel := l.unsubscribe, l.cancel
	l.unsubscribe, l.cancel = nil, nil
	l.mu.Unlock()

	unsub()
	cancel()
	l.inflight.Wait()
	l.log.Info().Msg("callback listener stopped")
}

func (l *Listener) dispatch(ctx context.Context, raw string) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.inflight.Done()
		_ = l.OnNotification(ctx, raw)
	}()
}

// OnNotification parses raw and forwards it to the target when it belongs to
// the donation flow.
func (l *Listener) OnNotification(ctx context.Context, raw string) error {
	n, err := l.matcher.Parse(raw)
	switch {
	case errors.Is(err, status.ErrForeignCallback):
		l.monitor.TrackCallback(monitoring.CallbackForeign)
		l.log.Debug().Str("uri", raw).Msg("ignoring foreign notification")
		return err
	case err != nil:
		l.monitor.TrackCallback(monitoring.CallbackMalformed)
		l.log.Warn().Err(err).Str("uri", raw).Msg("malformed notification")
		return err
	}

	if err := l.target.HandleCallback(ctx, n); err != nil {
		l.log.Debug().Err(err).Str("uri", raw).Msg("callback not applied")
		return err
	}
	return nil
}
