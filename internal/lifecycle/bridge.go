// Package lifecycle merges the host's asynchronous session signals — the
// periodic snapshot ticker, tab-hidden reports, and unload reports — into a
// single ordered trigger stream. Consuming the stream from one goroutine is
// what serializes trigger handling against the session registry; the sources
// themselves give no ordering guarantee.
package lifecycle

import (
	"sync"
	"time"
)

// TriggerKind identifies what caused a snapshot trigger.
type TriggerKind int

const (
	// TriggerTick is the periodic timer: every pending session gets a
	// snapshot update.
	TriggerTick TriggerKind = iota
	// TriggerHidden means the study view became hidden. Updates only —
	// the user may return.
	TriggerHidden
	// TriggerUnload means the tab or window is closing: finalize.
	TriggerUnload
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerTick:
		return "tick"
	case TriggerHidden:
		return "hidden"
	case TriggerUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Trigger is one lifecycle signal. ExamCode is empty for ticks, which apply
// to all pending sessions.
type Trigger struct {
	Kind     TriggerKind
	ExamCode string
}

// Bridge is the subscription surface the scheduler consumes.
type Bridge interface {
	// Triggers is the serialized trigger stream.
	Triggers() <-chan Trigger
	// ResumeTicks starts the periodic ticker if it is not running.
	ResumeTicks()
	// PauseTicks stops the periodic ticker. Called when no session is
	// pending so no timer work leaks against stale session ids.
	PauseTicks()
	// Close releases the ticker on teardown.
	Close()
}

// HostBridge is the production Bridge: a cancellable time.Ticker plus
// externally fed hidden/unload signals (delivered by HTTP handlers on behalf
// of the browser).
type HostBridge struct {
	interval time.Duration
	out      chan Trigger

	mu       sync.Mutex
	tickStop chan struct{}
}

// NewHostBridge creates a bridge with the given tick interval. The ticker
// does not run until ResumeTicks is called.
func NewHostBridge(interval time.Duration) *HostBridge {
	return &HostBridge{
		interval: interval,
		out:      make(chan Trigger, 64),
	}
}

func (b *HostBridge) Triggers() <-chan Trigger {
	return b.out
}

// EmitHidden reports that the study view for an exam became hidden.
func (b *HostBridge) EmitHidden(examCode string) {
	b.out <- Trigger{Kind: TriggerHidden, ExamCode: examCode}
}

// EmitUnload reports that the study view for an exam is closing.
func (b *HostBridge) EmitUnload(examCode string) {
	b.out <- Trigger{Kind: TriggerUnload, ExamCode: examCode}
}

func (b *HostBridge) ResumeTicks() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	b.tickStop = stop

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case b.out <- Trigger{Kind: TriggerTick}:
				case <-stop:
					return
				}
			}
		}
	}()
}

func (b *HostBridge) PauseTicks() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tickStop != nil {
		close(b.tickStop)
		b.tickStop = nil
	}
}

func (b *HostBridge) Close() {
	b.PauseTicks()
}
