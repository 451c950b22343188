// Package phyfacade implements the PHY Controller Facade (spec.md §4.4):
// it turns ports.PHY's callback-style completions into events routed to
// exactly the subscribing procedure handle that launched the request,
// dropping stale deliveries (a completion for a handle that has since
// completed or been relaunched) with a warning rather than an error.
//
// Grounded on internal/sbi/types.go's interface-plus-in-memory-impl
// idiom for the port boundary, and on proc.Handle's generation-stamped
// TriggerIfCurrent for the drop-stale mechanism named in spec.md §9.
package phyfacade

import (
	"context"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/metrics"
	"github.com/ranstack/rrcue/internal/ports"
)

// Subscriber is the subset of proc.Handle[Env, Args, Out] the facade
// needs: a generation token captured at launch time, and a way to
// deliver an event only if that generation is still current. Every
// instantiation of proc.Handle satisfies this regardless of its type
// parameters.
type Subscriber interface {
	Generation() string
	TriggerIfCurrent(ctx context.Context, generation string, ev event.Event) bool
}

// Poster hands a closure to the stack thread's task queue (spec.md §5).
// taskqueue.Queue.TryPush takes a taskqueue.Task rather than a func(), so
// the engine adapts the queue to this interface with a small wrapper.
type Poster interface {
	TryPush(producer string, fn func()) error
}

// Facade wraps a ports.PHY, adding subscriber routing.
type Facade struct {
	phy   ports.PHY
	post  Poster
	log   logging.Logger
	stats *metrics.Collector
}

// New constructs a Facade. post may be nil, in which case completions are
// delivered synchronously on the calling goroutine — used by tests that
// drive a ports.FakePHY directly from the stack thread.
func New(phy ports.PHY, post Poster, log logging.Logger, stats *metrics.Collector) *Facade {
	if log == nil {
		log = logging.Noop()
	}
	return &Facade{phy: phy, post: post, log: log, stats: stats}
}

// StartCellSearch requests a PHY cell search on behalf of sub. Returns
// false if PHY rejected the request outright (spec.md §4.4).
func (f *Facade) StartCellSearch(ctx context.Context, sub Subscriber) bool {
	gen := sub.Generation()
	return f.phy.StartCellSearch(func(res event.CellSearchResult) {
		f.deliver(ctx, sub, gen, res)
	})
}

// StartCellSelect requests a PHY cell select for target on behalf of
// sub. Returns false if PHY rejected the request outright.
func (f *Facade) StartCellSelect(ctx context.Context, target cell.ID, sub Subscriber) bool {
	gen := sub.Generation()
	return f.phy.StartCellSelect(target, func(res event.CellSelectResult) {
		f.deliver(ctx, sub, gen, res)
	})
}

// IsInSync reports PHY's instantaneous sync state.
func (f *Facade) IsInSync() bool { return f.phy.IsInSync() }

// CellIsCamping reports PHY's instantaneous camping state.
func (f *Facade) CellIsCamping() bool { return f.phy.CellIsCamping() }

// Reset resets the underlying PHY (spec.md §4.15 handover step 2).
func (f *Facade) Reset() { f.phy.Reset() }

func (f *Facade) deliver(ctx context.Context, sub Subscriber, gen string, ev event.Event) {
	run := func() {
		if !sub.TriggerIfCurrent(ctx, gen, ev) {
			f.log.Warn(ctx, "dropped stale phy completion", logging.String("kind", string(ev.Kind())))
			if f.stats != nil {
				f.stats.RecordDroppedEvent(string(ev.Kind()))
			}
		}
	}
	if f.post == nil {
		run()
		return
	}
	if err := f.post.TryPush("phy", run); err != nil {
		f.log.Warn(ctx, "phy completion dropped: task queue full", logging.String("kind", string(ev.Kind())))
		if f.stats != nil {
			f.stats.RecordDroppedEvent(string(ev.Kind()))
		}
	}
}
