package nostrmux

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

const handshakeTimeout = 10 * time.Second

// channelHooks are the callbacks a relayChannel fires into the client.
// They are invoked without any channel lock held.
type channelHooks struct {
	// onMessage delivers one parsed incoming frame.
	onMessage func(from string, msg *IncomingMessage)
	// onState reports every connection state transition.
	onState func(from string, state ConnectionState)
	// onTerminal reports the final error once the retry budget is spent.
	onTerminal func(from string, err error)
	// onError routes frame-level failures that have no direct caller.
	onError ErrorHandler
}

// relayChannel implements the transport interface over a gorilla WebSocket.
// Each start() begins a new lifetime: dial, read until failure, redial with
// backoff while the retry budget lasts.
type relayChannel struct {
	wsURL string
	retry int
	hooks channelHooks

	mu       sync.Mutex
	conn     *websocket.Conn
	st       ConnectionState
	disposed bool
	cancel   context.CancelFunc
}

func newRelayChannel(wsURL string, retry int, hooks channelHooks) *relayChannel {
	return &relayChannel{
		wsURL: wsURL,
		retry: retry,
		hooks: hooks,
		st:    StateInitialized,
	}
}

func (ch *relayChannel) url() string { return ch.wsURL }

func (ch *relayChannel) state() ConnectionState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.st
}

func (ch *relayChannel) start() {
	ch.mu.Lock()
	if ch.disposed {
		ch.mu.Unlock()
		return
	}
	switch ch.st {
	case StateStarting, StateOngoing, StateReconnecting:
		ch.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel
	ch.st = StateStarting
	ch.mu.Unlock()

	ch.hooks.onState(ch.wsURL, StateStarting)
	go ch.run(ctx)
}

// stop ends the current lifetime. Idempotent; the record and the channel
// survive for a later start.
func (ch *relayChannel) stop() {
	ch.mu.Lock()
	if ch.st == StateTerminated {
		ch.mu.Unlock()
		return
	}
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.st = StateTerminated
	ch.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	ch.hooks.onState(ch.wsURL, StateTerminated)
}

func (ch *relayChannel) dispose() {
	ch.mu.Lock()
	if ch.disposed {
		ch.mu.Unlock()
		return
	}
	ch.disposed = true
	ch.mu.Unlock()
	ch.stop()
}

// send writes one text frame. Frames are dropped unless the connection is
// ongoing, so CLOSE emission during reconnects degrades silently.
func (ch *relayChannel) send(frame []byte) {
	ch.mu.Lock()
	if ch.st != StateOngoing || ch.conn == nil {
		ch.mu.Unlock()
		return
	}
	err := ch.conn.WriteMessage(websocket.TextMessage, frame)
	ch.mu.Unlock()

	if err != nil {
		ch.hooks.onError(SDKError{
			Kind:      ErrTransportWrite,
			URL:       ch.wsURL,
			Cause:     err,
			Timestamp: time.Now(),
		})
	}
}

func (ch *relayChannel) run(ctx context.Context) {
	policy := newReconnectPolicy(ch.retry)
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	for {
		if ctx.Err() != nil {
			return
		}
		conn, resp, err := dialer.DialContext(ctx, ch.wsURL, nil)
		if err != nil {
			if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols &&
				errors.Is(err, websocket.ErrBadHandshake) {
				ch.transition(StateRejected)
				return
			}
			if ctx.Err() != nil {
				return
			}
			if !ch.backoff(ctx, policy, errors.Wrap(err, "dial relay")) {
				return
			}
			continue
		}

		ch.mu.Lock()
		if ch.st == StateTerminated || ch.disposed {
			ch.mu.Unlock()
			conn.Close()
			return
		}
		ch.conn = conn
		ch.mu.Unlock()

		policy.reset()
		ch.transition(StateOngoing)

		readErr := ch.readLoop(conn)

		ch.mu.Lock()
		ch.conn = nil
		ch.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if !ch.backoff(ctx, policy, errors.Wrap(readErr, "connection lost")) {
			return
		}
	}
}

// backoff consumes one retry. It returns false when the budget is spent
// (after surfacing the terminal error) or the lifetime was cancelled.
func (ch *relayChannel) backoff(ctx context.Context, policy *reconnectPolicy, cause error) bool {
	wait, ok := policy.next()
	if !ok {
		ch.transition(StateError)
		ch.hooks.onTerminal(ch.wsURL, cause)
		return false
	}
	ch.transition(StateReconnecting)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	ch.transition(StateStarting)
	return true
}

func (ch *relayChannel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, perr := parseIncoming(data)
		if perr != nil {
			ch.hooks.onError(SDKError{
				Kind:      ErrParseFailure,
				URL:       ch.wsURL,
				Cause:     perr,
				Raw:       data,
				Timestamp: time.Now(),
			})
			continue
		}
		ch.hooks.onMessage(ch.wsURL, msg)
	}
}

// transition moves to a new state and reports it. Once a lifetime is
// terminated, only start() may begin another; late transitions from the
// run goroutine are dropped.
func (ch *relayChannel) transition(next ConnectionState) {
	ch.mu.Lock()
	if ch.st == StateTerminated || ch.st == next {
		ch.mu.Unlock()
		return
	}
	ch.st = next
	ch.mu.Unlock()
	ch.hooks.onState(ch.wsURL, next)
}
