package eventloop

import "time"

// DebounceTimer coalesces a burst of events into one firing. Arming
// an already armed timer restarts the countdown, so the firing only
// happens once the burst has settled.
type DebounceTimer struct {
	c     chan time.Time
	timer *time.Timer
	armed bool
}

// NewDebounceTimer creates a disarmed timer.
func NewDebounceTimer() *DebounceTimer {
	return &DebounceTimer{c: make(chan time.Time, 1)}
}

// Arm starts, or restarts, the countdown.
func (t *DebounceTimer) Arm(d time.Duration) {
	t.Stop()
	t.timer = time.AfterFunc(d, func() {
		select {
		case t.c <- time.Now():
		default:
		}
	})
	t.armed = true
}

// Stop disarms the timer and discards a firing that raced the stop.
func (t *DebounceTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	select {
	case <-t.c:
	default:
	}
}

// IsArmed returns true if the timer is currently armed.
func (t *DebounceTimer) IsArmed() bool {
	return t.armed
}

// Chan returns the firing channel, or nil while disarmed. A nil
// channel parks the corresponding select case.
func (t *DebounceTimer) Chan() <-chan time.Time {
	if !t.armed {
		return nil
	}
	return t.c
}
