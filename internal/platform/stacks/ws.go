// Package stacks subscribes to new-block notifications from a Stacks API
// websocket endpoint.
package stacks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/stx20sync/internal/backoff"
	"github.com/alanyoungcy/stx20sync/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultReconnectDelay    = 2 * time.Second
	defaultMaxReconnectDelay = 60 * time.Second
)

// rpcRequest is a JSON-RPC 2.0 call.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcMessage covers both responses and notifications.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type blockParams struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

// BlockSubscriber delivers a BlockEvent for every block the node announces.
// The connection is re-established with capped exponential backoff until
// the subscription context is cancelled.
type BlockSubscriber struct {
	wsURL             string
	logger            *slog.Logger
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	nextID            atomic.Int64
	connected         atomic.Bool
}

// Option configures a BlockSubscriber.
type Option func(*BlockSubscriber)

// WithLogger sets the subscriber's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *BlockSubscriber) { s.logger = l }
}

// WithReconnectDelay sets the base and maximum reconnect backoff.
func WithReconnectDelay(base, maxDelay time.Duration) Option {
	return func(s *BlockSubscriber) {
		s.reconnectDelay = base
		s.maxReconnectDelay = maxDelay
	}
}

// NewBlockSubscriber creates a subscriber for wsURL, e.g.
// "wss://api.mainnet.hiro.so/extended/v1/ws".
func NewBlockSubscriber(wsURL string, opts ...Option) *BlockSubscriber {
	s := &BlockSubscriber{
		wsURL:             wsURL,
		logger:            slog.Default(),
		reconnectDelay:    defaultReconnectDelay,
		maxReconnectDelay: defaultMaxReconnectDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connected reports whether a websocket session is currently open.
func (s *BlockSubscriber) Connected() bool { return s.connected.Load() }

// Ping reports domain.ErrWSDisconnect while no session is open.
func (s *BlockSubscriber) Ping(context.Context) error {
	if !s.Connected() {
		return fmt.Errorf("stacks: %w", domain.ErrWSDisconnect)
	}
	return nil
}

// Subscribe dials the endpoint and returns a channel of block events. The
// first dial must succeed; later disconnects are retried in the background.
// The channel is closed when ctx is done.
func (s *BlockSubscriber) Subscribe(ctx context.Context) (<-chan domain.BlockEvent, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.BlockEvent, 16)
	go s.run(ctx, conn, out)
	return out, nil
}

func (s *BlockSubscriber) run(ctx context.Context, conn *websocket.Conn, out chan<- domain.BlockEvent) {
	defer close(out)
	delay := s.reconnectDelay
	for {
		start := time.Now()
		err := s.session(ctx, conn, out)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stacks: websocket session ended", slog.String("error", err.Error()))

		// A session that stayed up for a while resets the backoff.
		if time.Since(start) > s.maxReconnectDelay {
			delay = s.reconnectDelay
		}
		for {
			if !backoff.Sleep(ctx, backoff.Jitter(delay)) {
				return
			}
			delay = min(delay*2, s.maxReconnectDelay)
			conn, err = s.dial(ctx)
			if err == nil {
				s.logger.Info("stacks: websocket reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("stacks: reconnect failed",
				slog.String("error", err.Error()),
				slog.Duration("next_delay", delay),
			)
		}
	}
}

func (s *BlockSubscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("stacks/ws: connect: %w", err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID.Add(1),
		Method:  "subscribe",
		Params:  map[string]string{"event": "block"},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("stacks/ws: subscribe: %w", err)
	}
	return conn, nil
}

// session reads from conn until it fails or ctx is done.
func (s *BlockSubscriber) session(ctx context.Context, conn *websocket.Conn, out chan<- domain.BlockEvent) error {
	s.connected.Store(true)
	defer s.connected.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}()
	go pingLoop(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, ok, err := parseMessage(raw)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseMessage extracts a block event from a raw frame. Frames that are not
// block notifications are ignored. An RPC error reply ends the session.
func parseMessage(raw []byte) (domain.BlockEvent, bool, error) {
	var msg rpcMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BlockEvent{}, false, nil
	}
	if msg.Error != nil {
		return domain.BlockEvent{}, false, fmt.Errorf("stacks/ws: rpc error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.Method != "block" || len(msg.Params) == 0 {
		return domain.BlockEvent{}, false, nil
	}
	var p blockParams
	if err := json.Unmarshal(msg.Params, &p); err != nil || p.Height <= 0 {
		return domain.BlockEvent{}, false, nil
	}
	return domain.BlockEvent{Height: p.Height, Hash: p.Hash, ReceivedAt: time.Now().UTC()}, true, nil
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
