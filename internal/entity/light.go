package entity

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

// ColorModeColorTemp is the only colour mode lights support.
const ColorModeColorTemp = "color_temp"

// TurnOnParams are the optional attributes of a turn-on request.
// Nil fields are left unchanged.
type TurnOnParams struct {
	// Brightness on the platform scale (0-255).
	Brightness *int `json:"brightness,omitempty"`

	// ColorTempKelvin is clamped to [2700, 6500].
	ColorTempKelvin *int `json:"color_temp_kelvin,omitempty"`
}

// Light exposes a light device as a dimmable, colour-temperature light.
//
// State comes from coordinator updates; commands update the confirmed
// attributes optimistically so the host sees the change before the next poll.
//
// Thread Safety: All methods are safe for concurrent use.
type Light struct {
	dev    device.Device
	source Source
	sink   Sink

	mu         sync.Mutex
	isOn       bool
	brightness int
	colorTemp  int
	stale      bool
	token      coordinator.Token
	attached   bool

	// publishMu orders state mutation with publication to the sink. It is
	// never held across a vendor request.
	publishMu sync.Mutex

	// cmdMu serializes commands to the device.
	cmdMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	now func() time.Time
}

// NewLight creates a detached light entity.
func NewLight(dev device.Device, source Source, sink Sink) *Light {
	if sink == nil {
		sink = SinkFunc(func(State) {})
	}
	return &Light{
		dev:    dev,
		source: source,
		sink:   sink,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the light.
func (l *Light) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *Light) log() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

// ID returns the device ID; a device has exactly one light entity.
func (l *Light) ID() string { return l.dev.ID }

// DeviceID returns the device ID.
func (l *Light) DeviceID() string { return l.dev.ID }

// Kind returns device.KindLight.
func (l *Light) Kind() device.Kind { return device.KindLight }

// IsOn reports the current power state.
func (l *Light) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isOn
}

// Brightness returns brightness on the platform scale (0-255).
func (l *Light) Brightness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// ColorTempKelvin returns the colour temperature, 0 if never reported.
func (l *Light) ColorTempKelvin() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.colorTemp
}

// Stale reports whether the last poll failed.
func (l *Light) Stale() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

// Attach subscribes to the coordinator.
func (l *Light) Attach() error {
	l.mu.Lock()
	if l.attached {
		l.mu.Unlock()
		return ErrAlreadyAttached
	}
	l.attached = true
	l.mu.Unlock()

	token, err := l.source.Subscribe(l.handleUpdate)
	if err != nil {
		l.mu.Lock()
		l.attached = false
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return nil
}

// Detach unsubscribes from the coordinator.
func (l *Light) Detach() {
	l.mu.Lock()
	token, attached := l.token, l.attached
	l.attached = false
	l.token = ""
	l.mu.Unlock()

	if attached && token != "" {
		l.source.Unsubscribe(token)
	}
}

// handleUpdate applies a coordinator update.
func (l *Light) handleUpdate(u coordinator.Update) {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.Lock()
	if u.Err != nil {
		// Keep last known values
		l.stale = true
	} else {
		l.stale = false
		l.applySnapshotLocked(u.Snapshot)
	}
	state := l.stateLocked(SourcePoll)
	l.mu.Unlock()

	l.sink.PublishState(state)
}

func (l *Light) applySnapshotLocked(s *cloud.Status) {
	if s == nil {
		return
	}
	l.isOn = s.IsOn()
	if s.Brightness != nil {
		l.brightness = BrightnessFromCloud(*s.Brightness)
	} else {
		l.brightness = 0
	}
	if s.ColorTemperature != nil {
		l.colorTemp = *s.ColorTemperature
	} else {
		l.colorTemp = 0
	}
}

// TurnOn switches the light on, optionally setting brightness and colour
// temperature.
//
// With a brightness, one setBrightness command is sent; with a colour
// temperature, one setColorTemperature command; with neither, one turnOn.
// Each confirmed attribute is updated immediately, and IsOn becomes true
// only if every command succeeded.
//
// Returns:
//   - error: *CommandError for the first failed command; later commands are not sent
func (l *Light) TurnOn(ctx context.Context, params TurnOnParams) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	var err error
	changed := false

	switch {
	case params.Brightness == nil && params.ColorTempKelvin == nil:
		err = l.send(ctx, cloud.TurnOn())

	default:
		if params.Brightness != nil {
			level := BrightnessToCloud(clamp(*params.Brightness, 0, MaxBrightness))
			if err = l.send(ctx, cloud.SetBrightness(level)); err == nil {
				// Report what the device was asked for, not the raw request.
				l.mu.Lock()
				l.brightness = BrightnessFromCloud(level)
				l.mu.Unlock()
				changed = true
			}
		}
		if err == nil && params.ColorTempKelvin != nil {
			k := ClampColorTemp(*params.ColorTempKelvin)
			if err = l.send(ctx, cloud.SetColorTemperature(k)); err == nil {
				l.mu.Lock()
				l.colorTemp = k
				l.mu.Unlock()
				changed = true
			}
		}
	}

	if err == nil {
		changed = true
	}
	if changed {
		l.publishCommandState(func() {
			if err == nil {
				l.isOn = true
			}
		})
	}
	return err
}

// TurnOff switches the light off.
//
// Returns:
//   - error: *CommandError if the command failed; IsOn is then unchanged
func (l *Light) TurnOff(ctx context.Context) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if err := l.send(ctx, cloud.TurnOff()); err != nil {
		return err
	}

	l.publishCommandState(func() { l.isOn = false })
	return nil
}

// publishCommandState applies mutate and publishes the result as a command
// state.
func (l *Light) publishCommandState(mutate func()) {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.Lock()
	mutate()
	state := l.stateLocked(SourceCommand)
	l.mu.Unlock()

	l.sink.PublishState(state)
}

func (l *Light) send(ctx context.Context, cmd cloud.Command) error {
	if err := l.source.SendCommand(ctx, cmd); err != nil {
		l.log().Warn("light command failed",
			"device_id", l.dev.ID,
			"command", cmd.Name,
			"parameter", cmd.Parameter,
			"error", err,
		)
		return &CommandError{EntityID: l.ID(), Command: cmd.Name, Err: err}
	}
	return nil
}

// State returns the current light state.
func (l *Light) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked(SourcePoll)
}

func (l *Light) stateLocked(source string) State {
	attrs := map[string]any{
		"is_on":                 l.isOn,
		"brightness":            l.brightness,
		"color_mode":            ColorModeColorTemp,
		"min_color_temp_kelvin": MinColorTempKelvin,
		"max_color_temp_kelvin": MaxColorTempKelvin,
	}
	if l.colorTemp > 0 {
		attrs["color_temp_kelvin"] = l.colorTemp
	}

	return State{
		EntityID:   l.ID(),
		DeviceID:   l.dev.ID,
		Kind:       device.KindLight,
		Name:       l.dev.Name,
		Stale:      l.stale,
		Attributes: attrs,
		Source:     source,
		Time:       l.now().UTC(),
	}
}
