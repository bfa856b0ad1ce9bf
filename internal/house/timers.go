package house

import (
	"time"

	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/danmuck/auctionctl/internal/protocol"
)

const DefaultBidWindow = 30 * time.Second

// ArmedBid is what a bid timer holds: the item as of the leading bid and the
// connection of the leading bidder.
type ArmedBid struct {
	Item       protocol.Item
	Bidder     Peer
	Generation uint64
	Deadline   time.Time
}

type bidTimer struct {
	armed ArmedBid
	timer *time.Timer
}

// TimerEngine keeps at most one bid timer per item. It has no lock of its
// own; the house lock guards it, and fire must take that lock before calling
// Take.
type TimerEngine struct {
	window time.Duration
	now    func() time.Time
	fire   func(item int, gen uint64)

	gen    uint64
	timers map[int]*bidTimer
}

func NewTimerEngine(window time.Duration, fire func(item int, gen uint64)) *TimerEngine {
	if window <= 0 {
		window = DefaultBidWindow
	}
	return &TimerEngine{
		window: window,
		now:    time.Now,
		fire:   fire,
		timers: make(map[int]*bidTimer),
	}
}

func (e *TimerEngine) Window() time.Duration {
	return e.window
}

// Delay is the time left in the window for a bid placed at start.
func (e *TimerEngine) Delay(start *time.Time) time.Duration {
	if start == nil {
		return e.window
	}
	d := e.window - e.now().Sub(*start)
	if d < 0 {
		return 0
	}
	return d
}

// Add arms a timer for item, replacing any existing one for the same number.
func (e *TimerEngine) Add(item protocol.Item, bidder Peer) ArmedBid {
	e.stop(item.Number)
	e.gen++
	delay := e.Delay(item.BidTime)
	armed := ArmedBid{
		Item:       item,
		Bidder:     bidder,
		Generation: e.gen,
		Deadline:   e.now().Add(delay),
	}
	number, gen := item.Number, e.gen
	e.timers[number] = &bidTimer{
		armed: armed,
		timer: time.AfterFunc(delay, func() { e.fire(number, gen) }),
	}
	observability.SetActiveTimers(len(e.timers))
	return armed
}

// Cancel stops the item's timer without a winner and returns what it held.
func (e *TimerEngine) Cancel(number int) (ArmedBid, bool) {
	t, ok := e.timers[number]
	if !ok {
		return ArmedBid{}, false
	}
	e.stop(number)
	observability.SetActiveTimers(len(e.timers))
	return t.armed, true
}

// Take claims a fired timer. It fails when gen is no longer the item's
// current generation, i.e. the timer was cancelled or replaced after it
// fired but before the caller got the lock.
func (e *TimerEngine) Take(number int, gen uint64) (ArmedBid, bool) {
	t, ok := e.timers[number]
	if !ok || t.armed.Generation != gen {
		return ArmedBid{}, false
	}
	delete(e.timers, number)
	observability.SetActiveTimers(len(e.timers))
	return t.armed, true
}

func (e *TimerEngine) Armed(number int) (ArmedBid, bool) {
	t, ok := e.timers[number]
	if !ok {
		return ArmedBid{}, false
	}
	return t.armed, true
}

func (e *TimerEngine) Len() int {
	return len(e.timers)
}

// StopAll cancels every timer.
func (e *TimerEngine) StopAll() {
	for number := range e.timers {
		e.stop(number)
	}
	observability.SetActiveTimers(0)
}

func (e *TimerEngine) stop(number int) {
	if t, ok := e.timers[number]; ok {
		t.timer.Stop()
		delete(e.timers, number)
	}
}
