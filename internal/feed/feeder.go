package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alephtrade/booksim/internal/domain"
)

// Sink consumes the parsed feed messages. Implemented by the market service,
// which routes them into per-instrument engine state.
type Sink interface {
	HandleSnapshot(ctx context.Context, snap domain.BookSnapshot)
	HandleUpdate(ctx context.Context, upd domain.BookUpdate)
	HandleTick(ctx context.Context, tick domain.Tick)
}

// Feeder owns the WebSocket connection lifecycle: it connects, subscribes for
// the configured instruments, pushes every message into the sink, and
// reconnects with a delay when the connection drops. Message delivery into
// the sink is single-goroutine, which keeps book mutation single-writer.
type Feeder struct {
	wsURL          string
	instrumentIDs  []string
	reconnectDelay time.Duration
	sink           Sink
	logger         *slog.Logger

	mu        sync.RWMutex
	client    *WSClient
	closeOnce sync.Once
	done      chan struct{}
}

// NewFeeder creates a Feeder for the given endpoint and instruments.
func NewFeeder(wsURL string, instrumentIDs []string, reconnectDelay time.Duration, sink Sink, logger *slog.Logger) *Feeder {
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	return &Feeder{
		wsURL:          wsURL,
		instrumentIDs:  instrumentIDs,
		reconnectDelay: reconnectDelay,
		sink:           sink,
		logger:         logger.With(slog.String("component", "feeder")),
		done:           make(chan struct{}),
	}
}

// Run connects and dispatches until ctx is cancelled or Close is called.
// Reconnects with the configured delay on disconnect.
func (f *Feeder) Run(ctx context.Context) error {
	if len(f.instrumentIDs) == 0 {
		f.logger.Info("no instruments to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

// RequestSnapshot forwards a resync request to the active connection. A
// disconnected feeder drops the request; the resubscribe after reconnect
// delivers a fresh snapshot anyway.
func (f *Feeder) RequestSnapshot(instrumentID string) {
	f.mu.RLock()
	client := f.client
	f.mu.RUnlock()
	if client == nil {
		return
	}
	if err := client.RequestSnapshot(instrumentID); err != nil {
		f.logger.Warn("snapshot request failed",
			slog.String("instrument_id", instrumentID),
			slog.String("error", err.Error()),
		)
	}
}

// Close stops the feeder.
func (f *Feeder) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *Feeder) runConnection(ctx context.Context) error {
	client := NewWSClient(f.wsURL)
	defer client.Close()

	// Handlers run on the client's single read goroutine, so book mutation
	// stays single-writer without extra queueing.
	client.OnSnapshot(func(snap domain.BookSnapshot) {
		f.sink.HandleSnapshot(ctx, snap)
	})
	client.OnUpdate(func(upd domain.BookUpdate) {
		f.sink.HandleUpdate(ctx, upd)
	})
	client.OnTrade(func(tick domain.Tick) {
		f.sink.HandleTick(ctx, tick)
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.instrumentIDs); err != nil {
		return err
	}

	f.mu.Lock()
	f.client = client
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.client = nil
		f.mu.Unlock()
	}()

	f.logger.Info("feed subscribed", slog.Int("instruments", len(f.instrumentIDs)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	case <-client.Lost():
		return domain.ErrWSDisconnect
	}
}
