package coordinator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

// Entry pairs a discovered device with its coordinator.
// Coordinator is nil for command-only devices (infrared remotes).
type Entry struct {
	Device      device.Device
	Coordinator *Coordinator
}

// Registry owns one coordinator per pollable device of an account.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	client Client
	opts   Options

	entries []*Entry
	byID    map[string]*Entry
	mu      sync.RWMutex

	started bool
	stopped bool
}

// NewRegistry creates an empty registry. Every coordinator it creates shares
// opts, including its Budget.
func NewRegistry(client Client, opts Options) *Registry {
	if opts.Budget == nil {
		opts.Budget = NewBudget(DefaultMaxConcurrent, 0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Registry{
		client: client,
		opts:   opts,
		byID:   make(map[string]*Entry),
	}
}

// Add registers a device and creates its coordinator.
//
// Parameters:
//   - d: Discovered device; remotes get no coordinator
//
// Returns:
//   - *Entry: The registered entry
//   - error: ErrDuplicateDevice if the ID is already registered
func (r *Registry) Add(d device.Device) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, d.ID)
	}

	e := &Entry{Device: d.Clone()}
	if d.HasStatus() {
		e.Coordinator = New(d.ID, r.client, r.opts)
	}
	r.entries = append(r.entries, e)
	r.byID[d.ID] = e
	return e, nil
}

// Get returns the entry for a device ID.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// Coordinator returns the coordinator for a device ID.
//
// Returns:
//   - error: ErrDeviceNotFound for unknown IDs, ErrNoStatus for remotes
func (r *Registry) Coordinator(id string) (*Coordinator, error) {
	e, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if e.Coordinator == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoStatus, id)
	}
	return e.Coordinator, nil
}

// Devices returns every entry in discovery order.
func (r *Registry) Devices() []*Entry {
	return r.filter(func(*Entry) bool { return true })
}

// Lights returns light entries in discovery order.
func (r *Registry) Lights() []*Entry {
	return r.filter(func(e *Entry) bool { return e.Device.Kind == device.KindLight })
}

// Sensors returns sensor entries in discovery order.
func (r *Registry) Sensors() []*Entry {
	return r.filter(func(e *Entry) bool { return e.Device.Kind == device.KindSensor })
}

// Remotes returns infrared remote entries in discovery order.
func (r *Registry) Remotes() []*Entry {
	return r.filter(func(e *Entry) bool { return e.Device.Kind == device.KindRemote })
}

func (r *Registry) filter(keep func(*Entry) bool) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Start runs the first refresh of every coordinator, at most Budget.Capacity
// at a time, then starts every polling loop.
//
// A device that fails its first refresh is still started; it keeps polling
// with backoff and its subscribers see the failure.
//
// Returns:
//   - map[string]error: First-refresh failures by device ID (empty if all succeeded)
//   - error: ErrAlreadyStarted, or a context error if ctx ended during setup
func (r *Registry) Start(ctx context.Context) (map[string]error, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	r.started = true
	entries := make([]*Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	failures := make(map[string]error)
	var failMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Budget.Capacity())
	for _, e := range entries {
		if e.Coordinator == nil {
			continue
		}
		g.Go(func() error {
			err := e.Coordinator.FirstRefresh(gctx)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failMu.Lock()
			failures[e.Device.ID] = err
			failMu.Unlock()
			r.opts.Logger.Warn("first refresh failed", "device_id", e.Device.ID, "error", err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failures, fmt.Errorf("first refresh: %w", err)
	}

	for _, e := range entries {
		if e.Coordinator == nil {
			continue
		}
		if err := e.Coordinator.Start(ctx); err != nil {
			return failures, fmt.Errorf("starting coordinator %s: %w", e.Device.ID, err)
		}
	}

	r.opts.Logger.Info("coordinators started",
		"devices", len(entries),
		"first_refresh_failures", len(failures),
	)
	return failures, nil
}

// Stop stops every coordinator in discovery order. Each Stop waits for its
// coordinator's in-flight work, so Stop returns only when no poll, command
// or callback is running.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	for _, e := range r.Devices() {
		if e.Coordinator != nil {
			e.Coordinator.Stop()
		}
	}
}

// ResumeAll resumes every coordinator suspended by an authentication
// failure. Call after replacing the client's credentials.
func (r *Registry) ResumeAll() {
	for _, e := range r.Devices() {
		if e.Coordinator != nil {
			e.Coordinator.Resume()
		}
	}
}

// SendCommand routes a command to any registered device, including remotes.
// Remotes have no coordinator of their own, so their commands go through the
// budget directly.
func (r *Registry) SendCommand(ctx context.Context, id string, cmd cloud.Command) error {
	e, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if e.Coordinator != nil {
		return e.Coordinator.SendCommand(ctx, cmd)
	}

	r.mu.RLock()
	stopped := r.stopped
	r.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	release, err := r.opts.Budget.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return r.client.SendCommand(ctx, id, cmd)
}
