package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Countdown drives the per-question display timer. The client counts
// down from the limit the relay sent with question-started; the relay's
// time-up event stays authoritative for expiry, so this ticker is
// visual feedback plus a local fallback trigger.
//
// At most one countdown runs per instance: Start cancels any previous
// run before launching a new one, and Cancel stops the current run
// without erroring if none is live.
type Countdown struct {
	clock clockwork.Clock

	mu   sync.Mutex
	stop chan struct{}
}

// NewCountdown creates a countdown on the given clock. Pass
// clockwork.NewRealClock() in production and a FakeClock in tests.
func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// Start begins ticking once per second from limit seconds. onTick is
// invoked after each decrement with the remaining seconds; onExpire is
// invoked exactly once when the count reaches zero. Any countdown
// already running is cancelled first so a stale question can never keep
// ticking alongside the new one.
func (c *Countdown) Start(limit int, onTick func(remaining int), onExpire func()) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	if limit <= 0 {
		log.Debug().Int("limit", limit).Msg("countdown started with no time, expiring immediately")
		if onExpire != nil {
			onExpire()
		}
		return
	}

	go c.run(limit, stop, onTick, onExpire)
}

// Cancel stops the active countdown, if any. Safe to call repeatedly.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) run(limit int, stop chan struct{}, onTick func(remaining int), onExpire func()) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := limit
	for remaining > 0 {
		select {
		case <-stop:
			log.Debug().Int("remaining", remaining).Msg("countdown cancelled")
			return
		case <-ticker.Chan():
			remaining--
			if onTick != nil {
				onTick(remaining)
			}
		}
	}

	// Zero-crossing: stop ticking and fire the expiry hook once. The
	// ticker goroutine exits here, so remaining never goes negative.
	if onExpire != nil {
		onExpire()
	}
}
