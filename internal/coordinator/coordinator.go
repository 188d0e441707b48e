package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
)

// Polling defaults, applied when Options leaves a field zero.
const (
	DefaultInterval      = 600 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultBackoffCap    = 5

	// minInterval guards against a zero or negative configured interval.
	minInterval = time.Second
)

// State is the polling lifecycle state of a coordinator.
type State int

// Coordinator states.
const (
	StateIdle State = iota
	StatePolling
	StateUpdated
	StateFailed
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateUpdated:
		return "updated"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Client is the subset of the cloud client a coordinator uses.
// *cloud.Client satisfies it.
type Client interface {
	FetchStatus(ctx context.Context, deviceID string) (*cloud.Status, error)
	SendCommand(ctx context.Context, deviceID string, cmd cloud.Command) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Update is delivered to subscribers after a poll or on subscription.
type Update struct {
	DeviceID string

	// Snapshot is a private clone for this subscriber. It is nil only if no
	// poll has ever succeeded.
	Snapshot *cloud.Status

	// Err is nil for a successful poll, otherwise the poll failure. The
	// Snapshot still holds the last successful data.
	Err error

	// Failures is the consecutive failure count after this poll.
	Failures int

	Time time.Time

	// Replay is true for the one-off delivery made on Subscribe.
	Replay bool
}

// Callback receives updates. Callbacks for one coordinator are never run
// concurrently and must not call Subscribe on the same coordinator.
type Callback func(Update)

// Token identifies a subscription.
type Token string

// Options configures polling behaviour.
type Options struct {
	// Interval is the base polling interval. Default: 600s.
	Interval time.Duration

	// MaxInterval caps the backed-off interval. Default: Interval ×
	// BackoffFactor^BackoffCap, so only the cap limits growth.
	MaxInterval time.Duration

	// BackoffFactor multiplies the interval per consecutive failure. Default: 2.
	BackoffFactor float64

	// BackoffCap is the failure count after which the interval stops growing. Default: 5.
	BackoffCap int

	// AlwaysUpdate notifies subscribers after every successful poll, even
	// when the data is unchanged.
	AlwaysUpdate bool

	// OnAuthFailure is called once per authentication failure, after
	// subscribers were notified and scheduled polling was suspended.
	OnAuthFailure func(deviceID string, err error)

	// Budget is shared by all coordinators of an account. Nil creates a
	// private budget.
	Budget *Budget

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Interval < minInterval {
		o.Interval = minInterval
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = DefaultBackoffFactor
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = DefaultBackoffCap
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = time.Duration(float64(o.Interval) * math.Pow(o.BackoffFactor, float64(o.BackoffCap)))
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	if o.Budget == nil {
		o.Budget = NewBudget(1, 0, 0)
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Backoff returns the polling interval after the given number of consecutive
// failures: min(base × factor^min(failures, cap), max).
func Backoff(base, maxInterval time.Duration, factor float64, backoffCap, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	exp := min(failures, backoffCap)
	d := float64(base) * math.Pow(factor, float64(exp))
	if d >= float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(d)
}

type subscription struct {
	token  Token
	fn     Callback
	active atomic.Bool
}

// Coordinator owns polling, caching and fan-out for one device.
//
// A single goroutine drives the poll timer. Every poll outcome is delivered
// to subscribers in registration order, one at a time, and a new subscriber
// receives the current snapshot exactly once before any later update.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	deviceID string
	client   Client
	opts     Options

	// mu guards the cached state below.
	mu          sync.Mutex
	state       State
	snapshot    *cloud.Status
	lastErr     error
	failures    int
	lastSuccess time.Time
	lastFailure time.Time
	suspended   bool
	started     bool
	stopped     bool

	// notifyMu serialises snapshot publication with subscriber delivery and
	// replay-on-join. Lock order: notifyMu, then mu, then subMu.
	notifyMu sync.Mutex

	subs  []*subscription
	subMu sync.RWMutex

	inFlight atomic.Bool
	active   sync.WaitGroup // polls and commands in progress

	resume chan struct{}

	// lifeCtx is cancelled by Stop and bounds every request.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once

	now func() time.Time
}

// New creates a coordinator for one device. Polling does not begin until
// Start or Refresh is called.
//
// Parameters:
//   - deviceID: Cloud device identifier
//   - client: Status and command transport
//   - opts: Polling options; zero fields take defaults
//
// Returns:
//   - *Coordinator: Idle coordinator with no snapshot
func New(deviceID string, client Client, opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		deviceID:   deviceID,
		client:     client,
		opts:       opts.withDefaults(),
		state:      StateIdle,
		resume:     make(chan struct{}, 1),
		lifeCtx:    ctx,
		lifeCancel: cancel,
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// DeviceID returns the device this coordinator polls.
func (c *Coordinator) DeviceID() string {
	return c.deviceID
}

// Start launches the polling loop. The first scheduled poll happens one
// interval from now; call FirstRefresh beforehand to populate the cache.
//
// The loop runs until ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifeCtx, cancel)
	go func() {
		defer close(c.done)
		defer stop()
		defer cancel()
		c.run(loopCtx)
	}()

	return nil
}

// run is the polling loop.
func (c *Coordinator) run(ctx context.Context) {
	timer := time.NewTimer(c.NextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.resume:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			c.scheduledPoll(ctx, timer)

		case <-timer.C:
			c.scheduledPoll(ctx, timer)
		}
	}
}

// scheduledPoll polls unless suspended and rearms the timer.
// While suspended the timer stays unarmed until Resume.
func (c *Coordinator) scheduledPoll(ctx context.Context, timer *time.Timer) {
	if c.isSuspended() {
		return
	}

	err := c.poll(ctx)
	if errors.Is(err, ErrStopped) || ctx.Err() != nil {
		return
	}
	if c.isSuspended() {
		return
	}
	timer.Reset(c.NextInterval())
}

// FirstRefresh performs the initial synchronous poll during setup.
// The outcome is cached and delivered like any other poll; the error lets
// setup report devices that were unavailable at startup.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	return c.poll(ctx)
}

// Refresh performs an immediate poll outside the schedule.
//
// Returns:
//   - error: ErrPollInFlight if a poll is already running, ErrStopped after
//     Stop, otherwise the fetch error (nil on success)
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.poll(ctx)
}

// poll fetches, caches and notifies. At most one poll runs at a time.
func (c *Coordinator) poll(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.active.Add(1)
	c.state = StatePolling
	c.mu.Unlock()
	defer c.active.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.lifeCtx, cancel)
	defer stop()

	status, err := c.fetch(ctx)
	if err != nil && ctx.Err() != nil {
		// Cancelled polls are not failures and change nothing
		c.mu.Lock()
		if !c.stopped {
			c.state = StateIdle
		}
		c.mu.Unlock()
		if c.lifeCtx.Err() != nil {
			return ErrStopped
		}
		return ctx.Err()
	}

	authFailed := c.publish(status, err)

	if authFailed && c.opts.OnAuthFailure != nil {
		c.opts.OnAuthFailure(c.deviceID, err)
	}
	return err
}

func (c *Coordinator) fetch(ctx context.Context) (*cloud.Status, error) {
	release, err := c.opts.Budget.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return c.client.FetchStatus(ctx, c.deviceID)
}

// publish stores a poll outcome and delivers it. It reports whether the
// outcome was an authentication failure.
func (c *Coordinator) publish(status *cloud.Status, err error) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	now := c.now()
	notify := true
	authFailed := false

	if err != nil {
		c.failures++
		c.lastErr = err
		c.lastFailure = now
		c.state = StateFailed
		if errors.Is(err, cloud.ErrAuth) {
			c.suspended = true
			authFailed = true
		}
		c.opts.Logger.Warn("device poll failed",
			"device_id", c.deviceID,
			"failures", c.failures,
			"next_interval", c.nextIntervalLocked().String(),
			"error", err,
		)
	} else {
		recovered := c.lastErr != nil
		changed := !c.snapshot.Equal(status)
		notify = changed || recovered || c.opts.AlwaysUpdate

		c.snapshot = status
		c.failures = 0
		c.lastErr = nil
		c.lastSuccess = now
		c.state = StateUpdated
		if recovered {
			c.opts.Logger.Info("device poll recovered", "device_id", c.deviceID)
		}
	}

	upd := Update{
		DeviceID: c.deviceID,
		Snapshot: c.snapshot,
		Err:      err,
		Failures: c.failures,
		Time:     now,
	}
	c.mu.Unlock()

	if notify {
		c.deliver(upd)
	}

	c.mu.Lock()
	if !c.stopped {
		c.state = StateIdle
	}
	c.mu.Unlock()

	return authFailed
}

// deliver calls every active subscriber in registration order.
// The caller holds notifyMu.
func (c *Coordinator) deliver(upd Update) {
	c.subMu.RLock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.subMu.RUnlock()

	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		u := upd
		u.Snapshot = upd.Snapshot.Clone()
		c.invoke(s, u)
	}
}

// invoke runs one callback, containing any panic.
func (c *Coordinator) invoke(s *subscription, u Update) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Error("subscriber panicked",
				"device_id", c.deviceID,
				"token", string(s.token),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.fn(u)
}

// Subscribe registers a callback for future updates.
//
// If a snapshot is cached, fn receives it once (Replay set) before Subscribe
// returns, and before any update from a later poll. A poll completing
// concurrently is delivered either in the replay or afterwards, never both.
//
// Parameters:
//   - fn: Callback; must not call Subscribe on this coordinator
//
// Returns:
//   - Token: Pass to Unsubscribe
//   - error: ErrNilCallback or ErrStopped
func (c *Coordinator) Subscribe(fn Callback) (Token, error) {
	if fn == nil {
		return "", ErrNilCallback
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return "", ErrStopped
	}
	var replay *Update
	if c.snapshot != nil {
		replay = &Update{
			DeviceID: c.deviceID,
			Snapshot: c.snapshot,
			Err:      c.lastErr,
			Failures: c.failures,
			Time:     c.now(),
			Replay:   true,
		}
	}
	c.mu.Unlock()

	s := &subscription{token: Token(uuid.NewString()), fn: fn}
	s.active.Store(true)

	c.subMu.Lock()
	c.subs = append(c.subs, s)
	c.subMu.Unlock()

	if replay != nil {
		u := *replay
		u.Snapshot = replay.Snapshot.Clone()
		c.invoke(s, u)
	}

	return s.token, nil
}

// Unsubscribe revokes a subscription. No delivery to it starts after
// Unsubscribe returns. It is safe to call from within a callback.
//
// Returns:
//   - bool: false if the token was unknown or already revoked
func (c *Coordinator) Unsubscribe(token Token) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for i, s := range c.subs {
		if s.token == token {
			s.active.Store(false)
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return true
		}
	}
	return false
}

// SendCommand sends a command to the device through the shared budget.
// Commands bypass the cache and are never retried.
//
// Returns:
//   - error: ErrStopped after Stop, otherwise the cloud client's error
func (c *Coordinator) SendCommand(ctx context.Context, cmd cloud.Command) error {
	return c.SendCommandTo(ctx, c.deviceID, cmd)
}

// SendCommandTo sends a command to another device on the same account, such
// as an infrared remote behind this device's hub.
func (c *Coordinator) SendCommandTo(ctx context.Context, deviceID string, cmd cloud.Command) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.active.Add(1)
	c.mu.Unlock()
	defer c.active.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.lifeCtx, cancel)
	defer stop()

	release, err := c.opts.Budget.Acquire(ctx)
	if err != nil {
		if c.lifeCtx.Err() != nil {
			return ErrStopped
		}
		return err
	}
	defer release()

	return c.client.SendCommand(ctx, deviceID, cmd)
}

// Resume re-enables scheduled polling after an authentication failure and
// triggers an immediate poll. It is a no-op when not suspended.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	wasSuspended := c.suspended
	c.suspended = false
	c.mu.Unlock()

	if !wasSuspended {
		return
	}
	c.opts.Logger.Info("device polling resumed", "device_id", c.deviceID)
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

func (c *Coordinator) isSuspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Stop cancels the polling loop, waits for it and for any in-flight poll,
// command or callback to finish, then rejects all further commands with
// ErrStopped. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		started := c.started
		c.mu.Unlock()

		c.lifeCancel()
		if started {
			<-c.done
		}
		c.active.Wait()

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()

		c.subMu.Lock()
		for _, s := range c.subs {
			s.active.Store(false)
		}
		c.subs = nil
		c.subMu.Unlock()
	})
}

// Snapshot returns a clone of the cached snapshot, or nil before the first
// successful poll.
func (c *Coordinator) Snapshot() *cloud.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// NextInterval returns the delay before the next scheduled poll.
func (c *Coordinator) NextInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextIntervalLocked()
}

func (c *Coordinator) nextIntervalLocked() time.Duration {
	return Backoff(c.opts.Interval, c.opts.MaxInterval, c.opts.BackoffFactor, c.opts.BackoffCap, c.failures)
}

// Info is a point-in-time view of a coordinator for diagnostics.
type Info struct {
	DeviceID     string        `json:"device_id"`
	State        State         `json:"state"`
	Failures     int           `json:"failures"`
	LastError    string        `json:"last_error,omitempty"`
	LastSuccess  *time.Time    `json:"last_success,omitempty"`
	LastFailure  *time.Time    `json:"last_failure,omitempty"`
	Suspended    bool          `json:"suspended"`
	NextInterval time.Duration `json:"next_interval_ns"`
	Subscribers  int           `json:"subscribers"`
	Snapshot     *cloud.Status `json:"snapshot,omitempty"`
}

// Status returns the coordinator's current Info.
func (c *Coordinator) Status() Info {
	c.mu.Lock()
	info := Info{
		DeviceID:     c.deviceID,
		State:        c.state,
		Failures:     c.failures,
		Suspended:    c.suspended,
		NextInterval: c.nextIntervalLocked(),
		Snapshot:     c.snapshot.Clone(),
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	if !c.lastSuccess.IsZero() {
		t := c.lastSuccess
		info.LastSuccess = &t
	}
	if !c.lastFailure.IsZero() {
		t := c.lastFailure
		info.LastFailure = &t
	}
	c.mu.Unlock()

	c.subMu.RLock()
	info.Subscribers = len(c.subs)
	c.subMu.RUnlock()

	return info
}

// LastError returns the most recent poll error, nil after a success.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
