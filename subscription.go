package nostrmux

import (
	"fmt"
	"sync"
	"time"
)

// Strategy selects how a Req maps filter emissions onto relay
// subscriptions.
type Strategy int

const (
	// StrategyForward keeps one live subscription id and overwrites its
	// filters on every emission. The stream stays open until unsubscribed.
	StrategyForward Strategy = iota
	// StrategyBackward opens a fresh subscription id per emission and
	// completes each one on EOSE, unreachable relays, or idle timeout.
	StrategyBackward
	// StrategyOneshot behaves like backward but honors only the first
	// emission, and the stream completes with it.
	StrategyOneshot
)

var strategyNames = [...]string{
	StrategyForward:  "forward",
	StrategyBackward: "backward",
	StrategyOneshot:  "oneshot",
}

func (s Strategy) String() string {
	if int(s) >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// Req is a caller-owned source of filter emissions. Create one with
// NewForwardReq, NewBackwardReq, or NewOneshotReq, bind it with
// Client.Subscribe, then Emit filter lists. Emissions before binding are
// ignored.
type Req struct {
	id       string
	strategy Strategy

	mu      sync.Mutex
	binding *subBinding
	over    bool
}

// NewForwardReq creates a forward-strategy request. An empty id gets a
// generated one; ids must be unique within a client.
func NewForwardReq(id string) *Req {
	return newReq(id, StrategyForward)
}

// NewBackwardReq creates a backward-strategy request.
func NewBackwardReq(id string) *Req {
	return newReq(id, StrategyBackward)
}

// NewOneshotReq creates a oneshot-strategy request.
func NewOneshotReq(id string) *Req {
	return newReq(id, StrategyOneshot)
}

func newReq(id string, strategy Strategy) *Req {
	if id == "" {
		id = generateID()
	}
	return &Req{id: id, strategy: strategy}
}

// ID returns the caller-scoped request id.
func (r *Req) ID() string { return r.id }

// Strategy returns the request's strategy.
func (r *Req) Strategy() Strategy { return r.strategy }

// Emit pushes one filter list. A nil list is ignored; an empty non-nil
// list is sent as a REQ with no filters.
func (r *Req) Emit(filters []Filter) {
	if filters == nil {
		return
	}
	r.mu.Lock()
	b := r.binding
	r.mu.Unlock()
	if b == nil {
		return
	}
	b.client.emitFilters(b, filters)
}

// Over signals that a backward request will emit no more filters; its
// event stream completes once every in-flight subscription id completes.
// Forward and oneshot requests ignore it.
func (r *Req) Over() {
	r.mu.Lock()
	r.over = true
	b := r.binding
	r.mu.Unlock()
	if b != nil {
		b.client.overBinding(b)
	}
}

// subBinding is the engine-side state of one Subscribe call: the caller's
// event stream plus every subscription id spawned from the Req.
type subBinding struct {
	req    *Req
	client *Client
	out    chan EventPacket

	nextIndex int
	emitted   bool
	over      bool
	closed    bool
	states    map[string]*subState
}

// subState tracks one subscription id: which relays have EOSE'd it, its
// idle timer, and whether it has completed. Forward states carry neither
// EOSE set nor timer.
type subState struct {
	subID    string
	binding  *subBinding
	strategy Strategy
	eose     map[string]struct{}
	timer    *time.Timer
	done     bool
}

// Subscribe binds a Req to the pool and returns the event stream plus a
// stop function. Stopping CLOSEs every relay that still holds one of the
// Req's subscription ids and completes the stream. A Req binds once.
func (c *Client) Subscribe(req *Req, opts ...SubOption) (<-chan EventPacket, func(), error) {
	o := subDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, nil, ErrClientDisposed
	}

	b := &subBinding{
		req:    req,
		client: c,
		out:    make(chan EventPacket, o.bufferSize),
		states: make(map[string]*subState),
	}

	req.mu.Lock()
	if req.binding != nil {
		req.mu.Unlock()
		return nil, nil, ErrReqAlreadyBound
	}
	req.binding = b
	b.over = req.over
	req.mu.Unlock()

	c.bindings[b] = struct{}{}
	return b.out, func() { c.unsubscribe(b) }, nil
}

// emitFilters attaches a subscription id to the filter list per the Req's
// strategy and fans the REQ out to readable relays.
func (c *Client) emitFilters(b *subBinding, filters []Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || b.closed {
		return
	}
	if b.req.strategy == StrategyForward {
		c.emitForwardLocked(b, filters)
		return
	}
	c.emitInnerLocked(b, filters)
}

// emitForwardLocked reuses the single `${id}:0` subscription id. Every
// readable relay gets the new REQ whether or not it already holds the id:
// the relay replaces the running subscription in place.
func (c *Client) emitForwardLocked(b *subBinding, filters []Filter) {
	subID := b.req.id + ":0"
	frame, err := newReqFrame(subID, filters)
	if err != nil {
		return
	}

	st := b.states[subID]
	if st == nil {
		st = &subState{subID: subID, binding: b, strategy: StrategyForward}
		b.states[subID] = st
		c.subs[subID] = st
	}

	c.activeReqs[subID] = frame
	for _, rec := range c.relays {
		if !rec.read {
			continue
		}
		rec.transport.send(frame)
		rec.activeSubIds[subID] = struct{}{}
	}
}

// emitInnerLocked opens a fresh subscription id for one backward or
// oneshot emission. Relays already holding the id are skipped.
func (c *Client) emitInnerLocked(b *subBinding, filters []Filter) {
	if b.req.strategy == StrategyOneshot && b.emitted {
		return
	}
	b.emitted = true

	subID := fmt.Sprintf("%s:%d", b.req.id, b.nextIndex)
	b.nextIndex++

	frame, err := newReqFrame(subID, filters)
	if err != nil {
		return
	}

	st := &subState{
		subID:    subID,
		binding:  b,
		strategy: b.req.strategy,
		eose:     make(map[string]struct{}),
	}
	st.timer = time.AfterFunc(c.cfg.Timeout, func() { c.subTimeout(st) })
	b.states[subID] = st
	c.subs[subID] = st

	for _, rec := range c.relays {
		if !rec.read {
			continue
		}
		if _, dup := rec.activeSubIds[subID]; dup {
			continue
		}
		rec.transport.send(frame)
		rec.activeSubIds[subID] = struct{}{}
	}

	// An empty or fully unreachable pool completes immediately.
	c.checkCompleteLocked(st)
}

// handleEventLocked routes one EVENT frame to its subscription stream.
// Events from relays that already EOSE'd this id, or for completed ids,
// are dropped.
func (c *Client) handleEventLocked(from string, msg *IncomingMessage) {
	st, ok := c.subs[msg.SubID]
	if !ok || st.done {
		return
	}
	if _, eosed := st.eose[from]; eosed {
		return
	}

	pkt := EventPacket{From: from, SubID: msg.SubID, Event: msg.Event}
	select {
	case st.binding.out <- pkt:
	default:
		c.onError(SDKError{
			Kind:      ErrSlowConsumer,
			URL:       from,
			SubID:     msg.SubID,
			Timestamp: time.Now(),
		})
	}
	c.eventFan.publish(pkt)

	st.resetTimer(c.cfg.Timeout)
}

// handleEoseLocked records an EOSE, CLOSEs the sender, and re-evaluates
// completion. Duplicate EOSEs from one relay are ignored; forward
// subscriptions ignore EOSE entirely.
func (c *Client) handleEoseLocked(from string, msg *IncomingMessage) {
	st, ok := c.subs[msg.SubID]
	if !ok || st.done || st.strategy == StrategyForward {
		return
	}
	if _, dup := st.eose[from]; dup {
		return
	}
	st.eose[from] = struct{}{}

	if rec, ok := c.relays[from]; ok {
		if _, active := rec.activeSubIds[st.subID]; active {
			if frame, err := newCloseFrame(st.subID); err == nil {
				rec.transport.send(frame)
			}
			delete(rec.activeSubIds, st.subID)
		}
	}

	st.resetTimer(c.cfg.Timeout)
	c.checkCompleteLocked(st)
}

// checkCompleteLocked applies the completion predicate: every readable
// relay is either unreachable for the rest of its lifetime or ongoing and
// has delivered EOSE for this id.
func (c *Client) checkCompleteLocked(st *subState) {
	if st.done {
		return
	}
	for url, rec := range c.relays {
		if !rec.read {
			continue
		}
		state := rec.transport.state()
		if state.isUnreachable() {
			continue
		}
		if state == StateOngoing {
			if _, ok := st.eose[url]; ok {
				continue
			}
		}
		return
	}
	c.completeSubLocked(st)
}

// completeSubLocked finalizes one backward/oneshot subscription id and
// closes the caller stream when the binding has nothing left to wait for.
func (c *Client) completeSubLocked(st *subState) {
	c.finalizeSubLocked(st)

	b := st.binding
	delete(b.states, st.subID)
	if b.closed {
		return
	}
	if b.req.strategy == StrategyOneshot ||
		(b.req.strategy == StrategyBackward && b.over && len(b.states) == 0) {
		c.closeBindingLocked(b)
	}
}

// finalizeSubLocked marks the id done, stops its timer, and CLOSEs every
// relay that still holds it.
func (c *Client) finalizeSubLocked(st *subState) {
	if st.done {
		return
	}
	st.done = true
	if st.timer != nil {
		st.timer.Stop()
	}

	frame, err := newCloseFrame(st.subID)
	for _, rec := range c.relays {
		if _, active := rec.activeSubIds[st.subID]; !active {
			continue
		}
		if err == nil {
			rec.transport.send(frame)
		}
		delete(rec.activeSubIds, st.subID)
	}

	delete(c.subs, st.subID)
	if st.strategy == StrategyForward {
		delete(c.activeReqs, st.subID)
	}
}

// reevaluateSubsLocked re-runs the completion predicate for every live
// backward/oneshot id. Called on pool transitions and connection state
// changes, which both count as completion triggers.
func (c *Client) reevaluateSubsLocked() {
	for _, st := range c.subs {
		if st.strategy == StrategyForward || st.done {
			continue
		}
		st.resetTimer(c.cfg.Timeout)
		c.checkCompleteLocked(st)
	}
}

func (c *Client) subTimeout(st *subState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || st.done {
		return
	}
	c.completeSubLocked(st)
}

// unsubscribe is the stop function returned by Subscribe.
func (c *Client) unsubscribe(b *subBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return
	}
	for _, st := range b.states {
		c.finalizeSubLocked(st)
	}
	clear(b.states)
	c.closeBindingLocked(b)
}

func (c *Client) overBinding(b *subBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.over = true
	if b.closed || b.req.strategy != StrategyBackward {
		return
	}
	if len(b.states) == 0 {
		c.closeBindingLocked(b)
	}
}

func (c *Client) closeBindingLocked(b *subBinding) {
	if b.closed {
		return
	}
	b.closed = true
	close(b.out)
	delete(c.bindings, b)
}

func (st *subState) resetTimer(d time.Duration) {
	if st.timer != nil {
		st.timer.Reset(d)
	}
}
