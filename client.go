package nostrmux

import (
	"sync"

	"github.com/yanun0323/errors"
)

// Client is the main entry point: it owns the relay pool, the live
// subscription registry, and the aggregator streams. All bookkeeping runs
// under one lock, fed by a single dispatcher goroutine, so pool diffs,
// REQ/CLOSE fan-out, and completion evaluation never interleave.
type Client struct {
	cfg     Config
	onError ErrorHandler
	signer  Signer
	queue   *dispatchQueue

	mu         sync.Mutex
	disposed   bool
	relays     map[string]*relayRecord
	activeReqs map[string][]byte // forward subId → last REQ frame
	subs       map[string]*subState
	bindings   map[*subBinding]struct{}
	pubs       map[string]*pendingPub

	msgFan   *fanout[MessagePacket]
	eventFan *fanout[EventPacket]
	errFan   *fanout[ErrorPacket]
	stateFan *fanout[ConnectionStatePacket]
}

// NewClient creates a client with the given configuration. The onError
// handler is called for SDK-level errors that cannot be returned to a
// direct caller (inbound parse failures, failed writes, slow consumers);
// it must not block and must not call back into the Client.
// The pool starts empty; use SwitchRelays or AddRelay to populate it.
func NewClient(cfg Config, onError ErrorHandler) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	var signer Signer = nullSigner{}
	switch {
	case resolved.SecretKey != "":
		signer, err = NewKeySigner(resolved.SecretKey)
		if err != nil {
			return nil, err
		}
	case resolved.Signer != nil:
		signer = resolved.Signer
	}

	c := &Client{
		cfg:        resolved,
		onError:    onError,
		signer:     signer,
		queue:      newDispatchQueue(),
		relays:     make(map[string]*relayRecord),
		activeReqs: make(map[string][]byte),
		subs:       make(map[string]*subState),
		bindings:   make(map[*subBinding]struct{}),
		pubs:       make(map[string]*pendingPub),
		msgFan:     newFanout[MessagePacket](),
		eventFan:   newFanout[EventPacket](),
		errFan:     newFanout[ErrorPacket](),
		stateFan:   newFanout[ConnectionStatePacket](),
	}
	go c.dispatchLoop()
	return c, nil
}

// newTransport wires a relay channel's callbacks into the dispatch queue.
// Enqueueing never blocks, so transports may fire hooks even while a pool
// mutation holds the client lock.
func (c *Client) newTransport(url string) transport {
	return newRelayChannel(url, c.cfg.Retry, channelHooks{
		onMessage: func(from string, msg *IncomingMessage) {
			c.queue.push(dispatchItem{kind: dispatchMessage, from: from, msg: msg})
		},
		onState: func(from string, state ConnectionState) {
			c.queue.push(dispatchItem{kind: dispatchState, from: from, state: state})
		},
		onTerminal: func(from string, err error) {
			c.queue.push(dispatchItem{kind: dispatchTerminal, from: from, err: err})
		},
		onError: c.onError,
	})
}

// dispatchLoop is the client's single event loop: every incoming frame,
// state transition, and terminal failure is handled in arrival order.
func (c *Client) dispatchLoop() {
	for {
		item, ok := c.queue.pop()
		if !ok {
			return
		}
		switch item.kind {
		case dispatchMessage:
			c.handleMessage(item.from, item.msg)
		case dispatchState:
			c.handleState(item.from, item.state)
		case dispatchTerminal:
			c.handleTerminal(item.from, item.err)
		}
	}
}

func (c *Client) handleMessage(from string, msg *IncomingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}

	c.msgFan.publish(MessagePacket{From: from, Message: msg})

	switch msg.Type {
	case labelEvent:
		c.handleEventLocked(from, msg)
	case labelEOSE:
		c.handleEoseLocked(from, msg)
	case labelOK:
		c.handleOkLocked(from, msg)
	case labelClosed:
		// The relay ended the subscription itself; drop the id so no
		// dangling CLOSE follows. The frame stays visible on the message
		// stream for the caller to interpret.
		if rec, ok := c.relays[from]; ok {
			delete(rec.activeSubIds, msg.SubID)
		}
	}
}

func (c *Client) handleState(from string, state ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}

	c.stateFan.publish(ConnectionStatePacket{From: from, State: state})

	switch state {
	case StateOngoing:
		// Frames sent while the socket was down were dropped; replay every
		// live forward REQ this relay is supposed to hold. Covers both the
		// first open after a pool add and every reconnect.
		if rec, ok := c.relays[from]; ok {
			for subID := range rec.activeSubIds {
				if frame, live := c.activeReqs[subID]; live {
					rec.transport.send(frame)
				}
			}
		}
	case StateError:
		// Subsequent re-adds may re-issue REQs from a clean slate.
		if rec, ok := c.relays[from]; ok {
			clear(rec.activeSubIds)
		}
	}

	c.reevaluateSubsLocked()
}

func (c *Client) handleTerminal(from string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.errFan.publish(ErrorPacket{From: from, Reason: err})
}

// AllEvents streams every EventPacket delivered on any subscription.
// Stopping the stream has no effect on transports or subscriptions.
func (c *Client) AllEvents() (<-chan EventPacket, func()) {
	return c.eventFan.subscribe()
}

// AllMessages streams every incoming frame from every relay, including
// NOTICE, AUTH, CLOSED, and OK frames no subscription or publication
// claims.
func (c *Client) AllMessages() (<-chan MessagePacket, func()) {
	return c.msgFan.subscribe()
}

// AllErrors streams one ErrorPacket per relay whose retry budget ran out.
func (c *Client) AllErrors() (<-chan ErrorPacket, func()) {
	return c.errFan.subscribe()
}

// ConnectionStates streams every transport state transition.
func (c *Client) ConnectionStates() (<-chan ConnectionStatePacket, func()) {
	return c.stateFan.subscribe()
}

// Dispose tears the client down: every transport is disposed, every
// caller stream completes, and all further operations are no-ops.
// Idempotent.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true

	for _, rec := range c.relays {
		rec.transport.dispose()
	}

	for _, st := range c.subs {
		st.done = true
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	clear(c.subs)
	clear(c.activeReqs)

	for b := range c.bindings {
		b.closed = true
		close(b.out)
	}
	clear(c.bindings)

	for id, p := range c.pubs {
		if !p.done {
			p.done = true
			close(p.out)
		}
		delete(c.pubs, id)
	}
	c.mu.Unlock()

	c.msgFan.closeAll()
	c.eventFan.closeAll()
	c.errFan.closeAll()
	c.stateFan.closeAll()
	c.queue.close()
}
