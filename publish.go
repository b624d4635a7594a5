package nostrmux

import (
	"context"

	"github.com/yanun0323/errors"
)

// pendingPub collects OK acknowledgements for one published event. The
// stream is bounded by the writable-relay count at send time; at most one
// packet is surfaced per relay.
type pendingPub struct {
	eventID   string
	out       chan OkPacket
	remaining int
	seen      map[string]struct{}
	done      bool
}

// Send signs an event and publishes it to every writable relay. The
// returned stream yields one OkPacket per acknowledging relay — up to the
// writable-relay count — then completes. Relays that are offline at send
// time simply never acknowledge; the stop function releases the
// collection early.
func (c *Client) Send(ctx context.Context, params EventParams, opts ...SendOption) (<-chan OkPacket, func(), error) {
	o := sendDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	signer, err := c.resolveSigner(o)
	if err != nil {
		return nil, nil, err
	}
	ev, err := signer.SignEvent(ctx, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sign event")
	}
	frame, err := newEventFrame(ev)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, nil, ErrClientDisposed
	}

	writable := 0
	for _, rec := range c.relays {
		if rec.write {
			writable++
		}
	}

	p := &pendingPub{
		eventID:   ev.ID,
		out:       make(chan OkPacket, max(writable, 1)),
		remaining: writable,
		seen:      make(map[string]struct{}, writable),
	}
	if writable == 0 {
		p.done = true
		close(p.out)
		c.mu.Unlock()
		return p.out, func() {}, nil
	}

	c.pubs[ev.ID] = p
	for _, rec := range c.relays {
		if rec.write {
			rec.transport.send(frame)
		}
	}
	c.mu.Unlock()

	stop := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pubs[ev.ID] == p {
			delete(c.pubs, ev.ID)
		}
		if !p.done {
			p.done = true
			close(p.out)
		}
	}
	return p.out, stop, nil
}

// SendAuth signs a kind-22242 event for the given challenge and sends an
// AUTH frame to one relay. The NIP-42 handshake itself — tracking
// challenges, deciding when to authenticate — is left to the caller.
func (c *Client) SendAuth(ctx context.Context, rawURL, challenge string, opts ...SendOption) error {
	o := sendDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	url, err := NormalizeRelayURL(rawURL)
	if err != nil {
		return err
	}

	signer, err := c.resolveSigner(o)
	if err != nil {
		return err
	}
	ev, err := signer.SignEvent(ctx, EventParams{
		Kind: 22242,
		Tags: [][]string{{"relay", url}, {"challenge", challenge}},
	})
	if err != nil {
		return errors.Wrap(err, "sign auth event")
	}
	frame, err := newAuthFrame(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrClientDisposed
	}
	rec, ok := c.relays[url]
	if !ok {
		return errors.Wrapf(ErrUnknownRelay, "url: %s", url)
	}
	rec.transport.send(frame)
	return nil
}

// handleOkLocked correlates an OK frame to its pending publication by
// event id. Duplicate acknowledgements from one relay are dropped.
func (c *Client) handleOkLocked(from string, msg *IncomingMessage) {
	p, ok := c.pubs[msg.EventID]
	if !ok || p.done {
		return
	}
	if _, dup := p.seen[from]; dup {
		return
	}
	p.seen[from] = struct{}{}

	p.out <- OkPacket{
		From:     from,
		EventID:  msg.EventID,
		Accepted: msg.Accepted,
		Reason:   msg.Notice,
	}

	p.remaining--
	if p.remaining <= 0 {
		p.done = true
		close(p.out)
		delete(c.pubs, msg.EventID)
	}
}

func (c *Client) resolveSigner(o sendOptions) (Signer, error) {
	if o.secretKey != "" {
		return NewKeySigner(o.secretKey)
	}
	if o.signer != nil {
		return o.signer, nil
	}
	return c.signer, nil
}
