package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceSource lists the devices whose coordinators determine health.
// *coordinator.Registry satisfies it.
type DeviceSource interface {
	Devices() []*coordinator.Entry
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	SiteID   string
	Version  string

	// Interval is how often to publish health status. Default: 30s.
	Interval time.Duration

	Publisher HealthPublisher
	Devices   DeviceSource
}

// HealthReporter periodically publishes bridge health to the retained
// health topic.
//
// The bridge is degraded while MQTT is disconnected or any device's polls
// are failing; failing devices are listed in the message.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	now       func() time.Time

	entityCount   int
	entityCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publish(h.message(HealthStopping, "bridge stopping"))
	})
}

// SetEntityCount updates the managed entity count.
func (h *HealthReporter) SetEntityCount(count int) {
	h.entityCountMu.Lock()
	h.entityCount = count
	h.entityCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *HealthReporter) log() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(h.message(HealthStarting, "bridge starting"))
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.Current())
}

// Current evaluates health without publishing it.
func (h *HealthReporter) Current() HealthMessage {
	failing := h.failingDevices()

	status, reason := HealthHealthy, ""
	switch {
	case h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected():
		status, reason = HealthDegraded, "MQTT disconnected"
	case anySuspended(failing):
		status, reason = HealthDegraded, "vendor authentication failed"
	case len(failing) > 0:
		status, reason = HealthDegraded, fmt.Sprintf("%d device(s) failing", len(failing))
	}

	msg := h.message(status, reason)
	msg.DevicesFailing = len(failing)
	msg.Failing = failing
	return msg
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.log().Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.log().Warn("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	h.entityCountMu.RLock()
	entities := h.entityCount
	h.entityCountMu.RUnlock()

	devices := 0
	if h.cfg.Devices != nil {
		devices = len(h.cfg.Devices.Devices())
	}

	now := h.now()
	return HealthMessage{
		Bridge:          h.cfg.BridgeID,
		Site:            h.cfg.SiteID,
		Timestamp:       now.UTC(),
		Status:          status,
		Version:         h.cfg.Version,
		UptimeSeconds:   int64(now.Sub(h.startTime).Seconds()),
		DevicesManaged:  devices,
		EntitiesManaged: entities,
		Reason:          reason,
	}
}

func (h *HealthReporter) failingDevices() []FailingDevice {
	if h.cfg.Devices == nil {
		return nil
	}

	var failing []FailingDevice
	for _, e := range h.cfg.Devices.Devices() {
		if e.Coordinator == nil {
			continue
		}
		info := e.Coordinator.Status()
		if info.Failures == 0 && !info.Suspended {
			continue
		}
		failing = append(failing, FailingDevice{
			DeviceID:  info.DeviceID,
			Failures:  info.Failures,
			Error:     info.LastError,
			Suspended: info.Suspended,
		})
	}
	return failing
}

func anySuspended(devices []FailingDevice) bool {
	for _, d := range devices {
		if d.Suspended {
			return true
		}
	}
	return false
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}
