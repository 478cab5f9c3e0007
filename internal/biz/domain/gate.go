package domain

import (
	"sync"
	"time"
)

// BotConfig represents the relay configuration fixed at startup (value object)
type BotConfig struct {
	ChannelID   string        // The only channel the bot replies in
	ReplyDelay  time.Duration // Minimum spacing between two bot replies
	SettleDelay time.Duration // Pause between a triggering message and generation
}

// Decision is the result of a gate evaluation
type Decision struct {
	Allowed   bool
	Remaining time.Duration // Wait left until the next reply is allowed (zero when allowed)
	InFlight  bool          // Denied because another reply holds the reservation
}

// MayReply reports whether a reply may be sent at now, given the time of the
// last successful reply. A zero lastReply means the bot has never replied.
func MayReply(now, lastReply time.Time, replyDelay time.Duration) Decision {
	if lastReply.IsZero() {
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(lastReply)
	if elapsed >= replyDelay {
		return Decision{Allowed: true}
	}
	return Decision{Remaining: replyDelay - elapsed}
}

// ReplyGate owns the process-wide reply timestamp.
//
// The timestamp is only ever written through RecordReply or a committed
// Reservation, and it lives in memory only: every process start begins in
// the "never replied" state.
type ReplyGate struct {
	delay time.Duration

	mu        sync.Mutex
	lastReply time.Time
	held      *Reservation
}

// NewReplyGate creates a gate enforcing delay between replies
func NewReplyGate(delay time.Duration) *ReplyGate {
	return &ReplyGate{delay: delay}
}

// Delay returns the configured reply delay
func (g *ReplyGate) Delay() time.Duration {
	return g.delay
}

// MayReply evaluates the timing rule against the current state
func (g *ReplyGate) MayReply(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return MayReply(now, g.lastReply, g.delay)
}

// RecordReply sets the last reply time to now
func (g *ReplyGate) RecordReply(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastReply = now
}

// LastReply returns the time of the last successful reply (zero if none)
func (g *ReplyGate) LastReply() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReply
}

// InFlight reports whether a reservation is currently held
func (g *ReplyGate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held != nil
}

// Acquire evaluates the timing rule and, when it allows a reply, reserves the
// single reply slot in the same critical section. Concurrent handlers cannot
// both pass the gate before either of them has sent.
//
// The returned Reservation is nil when the decision is not Allowed.
func (g *ReplyGate) Acquire(now time.Time) (Decision, *Reservation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := MayReply(now, g.lastReply, g.delay)
	if !d.Allowed {
		return d, nil
	}
	if g.held != nil {
		return Decision{InFlight: true}, nil
	}

	r := &Reservation{gate: g}
	g.held = r
	return d, r
}

// Reservation is the exclusive right to send the next reply
type Reservation struct {
	gate *ReplyGate
	done bool // guarded by gate.mu
}

// Commit records a successful reply at now and frees the slot.
// Only the first Commit or Release has any effect; Commit reports whether it did.
func (r *Reservation) Commit(now time.Time) bool {
	g := r.gate
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.done {
		return false
	}
	r.done = true
	g.lastReply = now
	if g.held == r {
		g.held = nil
	}
	return true
}

// Release frees the slot without touching the reply timestamp
func (r *Reservation) Release() {
	g := r.gate
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.done {
		return
	}
	r.done = true
	if g.held == r {
		g.held = nil
	}
}
