package wheel

import (
	"sync"
	"time"
)

// Clock は時刻取得とタイマー生成を抽象化する
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// Ticker is the subset of *time.Ticker the driver needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is the subset of *time.Timer the driver needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock uses the system monotonic clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

func (RealClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// ManualClock is a controllable clock for tests and offline simulation.
// Tickers and timers fire only when Advance moves time past their deadline.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
}

type manualWaiter struct {
	clock    *ManualClock
	ch       chan time.Time
	deadline time.Time
	period   time.Duration
	stopped  bool
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("wheel: non-positive ticker interval")
	}
	return manualTicker{m.addWaiter(d, d)}
}

func (m *ManualClock) NewTimer(d time.Duration) Timer {
	return manualTimer{m.addWaiter(d, 0)}
}

func (m *ManualClock) addWaiter(d, period time.Duration) *manualWaiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{
		clock:    m,
		ch:       make(chan time.Time, 1),
		deadline: m.now.Add(d),
		period:   period,
	}
	m.waiters = append(m.waiters, w)
	return w
}

// Advance moves the clock forward and fires every due ticker and timer.
// A ticker that misses several periods delivers one tick, like time.Ticker.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)
	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(m.now) {
			select {
			case w.ch <- m.now:
			default:
			}
			if w.period <= 0 {
				w.stopped = true
				continue
			}
			for !w.deadline.After(m.now) {
				w.deadline = w.deadline.Add(w.period)
			}
		}
		kept = append(kept, w)
	}
	m.waiters = kept
}

// Pending returns the number of live tickers and timers.
func (m *ManualClock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

type manualTicker struct{ w *manualWaiter }

func (t manualTicker) C() <-chan time.Time { return t.w.ch }
func (t manualTicker) Stop()               { t.w.stop() }

type manualTimer struct{ w *manualWaiter }

func (t manualTimer) C() <-chan time.Time { return t.w.ch }
func (t manualTimer) Stop() bool          { return t.w.stop() }

func (w *manualWaiter) stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	wasActive := !w.stopped
	w.stopped = true
	return wasActive
}
