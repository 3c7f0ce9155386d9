package wheel

import (
	"math"
	"sync"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/types"
)

const (
	DefaultTickInterval     = 50 * time.Millisecond
	DefaultProgressInterval = 50 * time.Millisecond
	DefaultDurationMs       = 12000
	DefaultTurns            = 5
)

// State is the lifecycle state of a Driver.
type State int

const (
	StateIdle State = iota
	StateSpinning
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpinning:
		return "spinning"
	case StateSettling:
		return "settling"
	default:
		return "unknown"
	}
}

// Options configures a Driver. Zero values fall back to defaults.
type Options struct {
	DurationMs       int
	Turns            int
	TickInterval     time.Duration
	ProgressInterval time.Duration
	Clock            Clock

	OnProgress func(Progress)
	OnTick     func(Tick)
	OnOutcome  func(Outcome)
	// OnSettled fires after OnOutcome returns and the driver is Idle again.
	OnSettled  func(Outcome)
}

// SpinRequest is one request to start a spin.
type SpinRequest struct {
	Prizes      []types.Prize
	Available   []int
	ForcedIndex int
	Reversed    bool
	Owner       string
}

// Session is a snapshot of a spin session.
type Session struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner,omitempty"`
	WinnerIndex    int       `json:"winner_index"`
	SegmentCount   int       `json:"segment_count"`
	StartRotation  float64   `json:"start_rotation"`
	TargetRotation float64   `json:"target_rotation"`
	Turns          int       `json:"turns"`
	DurationMs     int       `json:"duration_ms"`
	Reversed       bool      `json:"reversed"`
	StartedAt      time.Time `json:"started_at"`
}

// Progress is a throttled animation sample.
type Progress struct {
	SessionID    uint64        `json:"session_id"`
	Linear       float64       `json:"linear"`
	Eased        float64       `json:"eased"`
	Rotation     float64       `json:"rotation"`
	PointerIndex int           `json:"pointer_index"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Tick is emitted when the rotation sweeps past one or more segment
// boundaries since the previous sample.
type Tick struct {
	SessionID    uint64 `json:"session_id"`
	Segment      int    `json:"segment"`
	Crossed      int    `json:"crossed"`
	PointerIndex int    `json:"pointer_index"`
}

// Outcome is the terminal event of a completed session.
type Outcome struct {
	SessionID   uint64      `json:"session_id"`
	Owner       string      `json:"owner,omitempty"`
	Index       int         `json:"index"`
	WinnerIndex int         `json:"winner_index"`
	Verified    bool        `json:"verified"`
	Prize       types.Prize `json:"prize"`
	Rotation    float64     `json:"rotation"`
}

type session struct {
	info   Session
	prizes []types.Prize

	ticker Ticker
	timer  Timer
	cancel chan struct{}

	cancelled bool
	settling  bool

	lastTicked        int
	lastProgressAt    time.Duration
	finalProgressSent bool
}

// Driver owns at most one in-flight spin session. Progress, tick and
// outcome callbacks are invoked serially from the session goroutine and
// never while the driver lock is held.
type Driver struct {
	mu sync.Mutex

	clock            Clock
	durationMs       int
	turns            int
	tickInterval     time.Duration
	progressInterval time.Duration

	onProgress func(Progress)
	onTick     func(Tick)
	onOutcome  func(Outcome)
	onSettled  func(Outcome)

	state    State
	rotation float64
	baseline float64
	active   *session
	nextID   uint64

	lastTrigger int64
	hasTrigger  bool
	disabled    bool
	closed      bool

	wg sync.WaitGroup
}

// NewDriver creates an idle driver.
func NewDriver(opts Options) *Driver {
	d := &Driver{
		clock:            opts.Clock,
		tickInterval:     opts.TickInterval,
		progressInterval: opts.ProgressInterval,
		onProgress:       opts.OnProgress,
		onTick:           opts.OnTick,
		onOutcome:        opts.OnOutcome,
		onSettled:        opts.OnSettled,
	}
	if d.clock == nil {
		d.clock = RealClock{}
	}
	if d.tickInterval <= 0 {
		d.tickInterval = DefaultTickInterval
	}
	if d.progressInterval <= 0 {
		d.progressInterval = DefaultProgressInterval
	}
	d.Configure(opts.DurationMs, opts.Turns)
	return d
}

// Configure sets duration and turns for subsequent sessions.
// Non-positive values select the defaults; others are clamped.
func (d *Driver) Configure(durationMs, turns int) {
	if durationMs <= 0 {
		durationMs = DefaultDurationMs
	}
	if turns <= 0 {
		turns = DefaultTurns
	}

	d.mu.Lock()
	d.durationMs = ClampDurationMs(durationMs)
	d.turns = ClampTurns(turns)
	d.mu.Unlock()
}

// SetDisabled blocks or unblocks new spins. An in-flight session is not
// affected.
func (d *Driver) SetDisabled(disabled bool) {
	d.mu.Lock()
	d.disabled = disabled
	d.mu.Unlock()
}

func (d *Driver) Disabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Rotation returns the most recent visual rotation in degrees.
func (d *Driver) Rotation() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotation
}

// Baseline returns the rotation the next session will start from.
func (d *Driver) Baseline() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline
}

// SetBaseline restores a carried-over rotation. It is ignored unless idle.
func (d *Driver) SetBaseline(deg float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return false
	}
	d.baseline = deg
	d.rotation = deg
	return true
}

// Active returns the in-flight session, if any.
func (d *Driver) Active() (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Session{}, false
	}
	return d.active.info, true
}

// Spin starts a new session. It returns false without side effects when a
// session is already in flight, the driver is disabled or closed, or no
// prize is available.
func (d *Driver) Spin(req SpinRequest) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spinLocked(req)
}

// Trigger starts a spin for a new trigger value. Repeating the previous
// value is a no-op. A value observed while a session is in flight, or while
// the driver is disabled, is consumed without starting a spin.
func (d *Driver) Trigger(trigger int64, req SpinRequest) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hasTrigger && d.lastTrigger == trigger {
		return Session{}, false
	}
	d.lastTrigger = trigger
	d.hasTrigger = true

	return d.spinLocked(req)
}

// LastTrigger returns the most recently observed trigger value.
func (d *Driver) LastTrigger() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTrigger, d.hasTrigger
}

func (d *Driver) spinLocked(req SpinRequest) (Session, bool) {
	if d.closed || d.disabled || d.state != StateIdle || d.active != nil {
		return Session{}, false
	}
	if len(req.Prizes) == 0 {
		return Session{}, false
	}

	available := make([]int, 0, len(req.Available))
	for _, idx := range req.Available {
		if idx >= 0 && idx < len(req.Prizes) {
			available = append(available, idx)
		}
	}
	if len(available) == 0 {
		return Session{}, false
	}

	prizes := make([]types.Prize, len(req.Prizes))
	copy(prizes, req.Prizes)

	winner := SelectWinner(prizes, available, req.ForcedIndex)
	target := PlanRotation(d.baseline, winner, len(prizes), d.turns, req.Reversed)

	d.nextID++
	s := &session{
		info: Session{
			ID:             d.nextID,
			Owner:          req.Owner,
			WinnerIndex:    winner,
			SegmentCount:   len(prizes),
			StartRotation:  d.baseline,
			TargetRotation: target,
			Turns:          d.turns,
			DurationMs:     d.durationMs,
			Reversed:       req.Reversed,
			StartedAt:      d.clock.Now(),
		},
		prizes: prizes,
		cancel: make(chan struct{}),
	}
	// タイマーはロック内で生成し、受理と同時に計時を開始する
	s.ticker = d.clock.NewTicker(d.tickInterval)
	s.timer = d.clock.NewTimer(time.Duration(d.durationMs) * time.Millisecond)

	d.active = s
	d.state = StateSpinning
	d.rotation = d.baseline

	d.wg.Add(1)
	go d.run(s)

	return s.info, true
}

// Cancel tears down the in-flight session. No outcome is emitted for it.
// A session that has already reached settling is not cancellable.
func (d *Driver) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

func (d *Driver) cancelLocked() bool {
	s := d.active
	if s == nil || s.settling || s.cancelled {
		return false
	}
	s.cancelled = true
	close(s.cancel)

	d.active = nil
	d.state = StateIdle
	d.rotation = d.baseline
	return true
}

// Close cancels any in-flight session, rejects further spins and waits for
// the session goroutine to exit.
func (d *Driver) Close() {
	d.mu.Lock()
	d.closed = true
	d.cancelLocked()
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Driver) run(s *session) {
	defer d.wg.Done()
	defer s.ticker.Stop()
	defer s.timer.Stop()

	for {
		select {
		case <-s.cancel:
			return
		case <-s.ticker.C():
			if !d.sample(s) {
				return
			}
		case <-s.timer.C():
			d.finalize(s)
			return
		}
	}
}

// sample advances the visual rotation and emits tick and progress events.
func (d *Driver) sample(s *session) bool {
	d.mu.Lock()
	if s.cancelled || d.active != s {
		d.mu.Unlock()
		return false
	}

	elapsed := d.clock.Now().Sub(s.info.StartedAt)
	duration := time.Duration(s.info.DurationMs) * time.Millisecond
	linear := 1.0
	if duration > 0 {
		linear = math.Min(1, float64(elapsed)/float64(duration))
	}
	if linear < 0 {
		linear = 0
	}
	eased := Ease(linear)
	rotation := s.info.StartRotation + (s.info.TargetRotation-s.info.StartRotation)*eased
	d.rotation = rotation

	pointer := ResolveSegmentIndex(rotation, s.info.SegmentCount, s.info.Reversed)

	var tick *Tick
	segment := int(math.Floor((rotation - s.info.StartRotation) / SegmentAngle(s.info.SegmentCount)))
	if segment > s.lastTicked {
		tick = &Tick{
			SessionID:    s.info.ID,
			Segment:      segment,
			Crossed:      segment - s.lastTicked,
			PointerIndex: pointer,
		}
		s.lastTicked = segment
	}

	var progress *Progress
	final := linear >= 1
	if (final && !s.finalProgressSent) || (!final && elapsed-s.lastProgressAt >= d.progressInterval) {
		s.lastProgressAt = elapsed
		if final {
			s.finalProgressSent = true
		}
		progress = &Progress{
			SessionID:    s.info.ID,
			Linear:       linear,
			Eased:        eased,
			Rotation:     rotation,
			PointerIndex: pointer,
			Elapsed:      elapsed,
		}
	}
	onTick, onProgress := d.onTick, d.onProgress
	d.mu.Unlock()

	if tick != nil && onTick != nil {
		onTick(*tick)
	}
	if progress != nil && onProgress != nil {
		onProgress(*progress)
	}
	return true
}

// finalize pins the rotation to the planned target and emits the outcome
// exactly once, unless the session was cancelled first.
func (d *Driver) finalize(s *session) {
	d.mu.Lock()
	if s.cancelled || d.active != s || s.settling {
		d.mu.Unlock()
		return
	}
	s.settling = true
	d.state = StateSettling

	target := s.info.TargetRotation
	d.rotation = target
	d.baseline = target

	index := ResolveSegmentIndex(target, s.info.SegmentCount, s.info.Reversed)
	outcome := Outcome{
		SessionID:   s.info.ID,
		Owner:       s.info.Owner,
		Index:       index,
		WinnerIndex: s.info.WinnerIndex,
		Verified:    index == s.info.WinnerIndex,
		Prize:       s.prizes[index],
		Rotation:    target,
	}

	var progress *Progress
	if !s.finalProgressSent {
		s.finalProgressSent = true
		progress = &Progress{
			SessionID:    s.info.ID,
			Linear:       1,
			Eased:        1,
			Rotation:     target,
			PointerIndex: index,
			Elapsed:      time.Duration(s.info.DurationMs) * time.Millisecond,
		}
	}
	onProgress, onOutcome := d.onProgress, d.onOutcome
	d.mu.Unlock()

	if progress != nil && onProgress != nil {
		onProgress(*progress)
	}
	if onOutcome != nil {
		onOutcome(outcome)
	}

	d.mu.Lock()
	settled := d.active == s
	if settled {
		d.active = nil
		d.state = StateIdle
	}
	onSettled := d.onSettled
	d.mu.Unlock()

	if settled && onSettled != nil {
		onSettled(outcome)
	}
}
