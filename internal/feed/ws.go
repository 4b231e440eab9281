// Package feed connects the engine to an external depth/ticker feed over
// WebSocket and routes messages into the per-instrument engine state.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alephtrade/booksim/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// SnapshotHandler is called for each full depth snapshot.
type SnapshotHandler func(domain.BookSnapshot)

// UpdateHandler is called for each incremental depth update.
type UpdateHandler func(domain.BookUpdate)

// TradeHandler is called for each trade print.
type TradeHandler func(domain.Tick)

// WSClient is a WebSocket client for the depth feed. It manages the
// connection lifecycle and subscriptions and dispatches parsed messages to
// registered handlers.
type WSClient struct {
	wsURL string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []wsCommand

	handlerMu        sync.RWMutex
	snapshotHandlers []SnapshotHandler
	updateHandlers   []UpdateHandler
	tradeHandlers    []TradeHandler

	done     chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
}

// NewWSClient creates a client for the given depth feed endpoint.
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
}

// Lost is closed when the read loop exits on a connection error. The owner
// should tear the client down and reconnect with a fresh one.
func (w *WSClient) Lost() <-chan struct{} {
	return w.lost
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously registered subscriptions are restored.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed: connect: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("feed: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to the depth and trade channels for the given
// instruments. The subscription is restored after a reconnect.
func (w *WSClient) Subscribe(ctx context.Context, instrumentIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: subscribe: not connected")
	}

	cmd := wsCommand{
		Type:          "subscribe",
		Channels:      []string{"snapshot", "l2update", "trade"},
		InstrumentIDs: instrumentIDs,
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// RequestSnapshot asks the feed to resend a full snapshot for one instrument.
// Used to resynchronize after a sequence gap or crossed-book rejection.
func (w *WSClient) RequestSnapshot(instrumentID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed: request snapshot: not connected")
	}
	cmd := wsCommand{
		Type:          "request_snapshot",
		InstrumentIDs: []string{instrumentID},
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("feed: request snapshot %s: %w", instrumentID, err)
	}
	return nil
}

// OnSnapshot registers a handler for full depth snapshots.
func (w *WSClient) OnSnapshot(h SnapshotHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.snapshotHandlers = append(w.snapshotHandlers, h)
}

// OnUpdate registers a handler for incremental depth updates.
func (w *WSClient) OnUpdate(h UpdateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.updateHandlers = append(w.updateHandlers, h)
}

// OnTrade registers a handler for trade prints.
func (w *WSClient) OnTrade(h TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, h)
}

// Close shuts down the connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers until
// the connection drops or the client closes.
func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			w.lostOnce.Do(func() { close(w.lost) })
			return
		}
		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw message and routes it by its type field.
// Unparseable messages are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "snapshot":
		var msg SnapshotMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		snap, err := msg.ToDomain()
		if err != nil {
			return
		}
		w.handlerMu.RLock()
		handlers := w.snapshotHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(snap)
		}

	case "l2update":
		var msg UpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		upd, err := msg.ToDomain()
		if err != nil {
			return
		}
		w.handlerMu.RLock()
		handlers := w.updateHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(upd)
		}

	case "trade":
		var msg TradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		tick, err := msg.ToDomain()
		if err != nil {
			return
		}
		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(tick)
		}
	}
}
