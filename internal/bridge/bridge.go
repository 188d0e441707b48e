package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
	"github.com/nerrad567/gray-logic-cloud/internal/entity"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
)

const (
	// defaultCommandTimeout bounds one MQTT command, including every vendor
	// request a turn_on with parameters makes.
	defaultCommandTimeout = 15 * time.Second

	// historyTimeout bounds one state history insert.
	historyTimeout = 2 * time.Second

	defaultQoS byte = 1
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// TelemetryWriter records entity values as time series.
// *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteSensorReading(r influxdb.SensorReading)
	WriteLightState(r influxdb.LightReading)
}

// Broadcaster fans events out to live API clients.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
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

// lightControl is the command surface of a light entity.
type lightControl interface {
	TurnOn(ctx context.Context, params entity.TurnOnParams) error
	TurnOff(ctx context.Context) error
}

// sensorField is implemented by sensor entities.
type sensorField interface {
	Field() cloud.Field
	Description() entity.FieldDescription
}

// Options holds the collaborators of a Bridge. MQTT and Registry are
// required; the rest are optional.
type Options struct {
	SiteID  string
	Version string

	MQTT     MQTTClient
	Registry *coordinator.Registry

	// QoS for state and ack publishes. Default: 1.
	QoS byte

	Telemetry   TelemetryWriter
	History     device.StateHistoryRepository
	Broadcaster Broadcaster

	// HealthInterval is how often health is republished. Default: 30s.
	HealthInterval time.Duration

	// CommandTimeout bounds one command from the host. Default: 15s.
	CommandTimeout time.Duration

	Logger Logger
}

// Bridge connects entities to the host platform.
//
// It is the entity.Sink for every entity: each published state goes to its
// retained MQTT state topic, the telemetry writer, the state history and the
// broadcaster. It also executes commands arriving on MQTT command topics and
// reports bridge health.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	health *HealthReporter

	entities []entity.Entity
	byID     map[string]entity.Entity
	entityMu sync.RWMutex

	started     bool
	watchTokens map[string]coordinator.Token
	startMu     sync.Mutex

	states *stateQueue

	// stopping and wg track in-flight commands; cmdMu orders wg.Add with
	// the wg.Wait in Stop.
	stopping bool
	cmdMu    sync.Mutex
	wg       sync.WaitGroup

	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Register entities, then call Start.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}
	if opts.Registry == nil {
		return nil, ErrRegistryRequired
	}
	if opts.QoS == 0 {
		opts.QoS = defaultQoS
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:        opts,
		byID:        make(map[string]entity.Entity),
		watchTokens: make(map[string]coordinator.Token),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      logger,
	}

	b.states = newStateQueue(defaultQueueDepth, b.deliverState, func(s entity.State) {
		b.log().Warn("state queue full, dropping oldest state", "entity_id", s.EntityID)
	})

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  Protocol,
		SiteID:    opts.SiteID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Devices:   opts.Registry,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Register adds entities. Entities registered before Start are attached by
// Start; later ones are attached immediately.
func (b *Bridge) Register(entities ...entity.Entity) error {
	b.entityMu.Lock()
	for _, e := range entities {
		if _, exists := b.byID[e.ID()]; exists {
			b.entityMu.Unlock()
			return fmt.Errorf("bridge: duplicate entity %s", e.ID())
		}
	}
	for _, e := range entities {
		b.entities = append(b.entities, e)
		b.byID[e.ID()] = e
	}
	count := len(b.entities)
	b.entityMu.Unlock()

	b.health.SetEntityCount(count)

	b.startMu.Lock()
	started := b.started
	b.startMu.Unlock()
	if started {
		for _, e := range entities {
			b.attach(e)
		}
	}
	return nil
}

// Entities returns registered entities in registration order.
func (b *Bridge) Entities() []entity.Entity {
	b.entityMu.RLock()
	defer b.entityMu.RUnlock()
	out := make([]entity.Entity, len(b.entities))
	copy(out, b.entities)
	return out
}

// Entity returns a registered entity by ID.
func (b *Bridge) Entity(id string) (entity.Entity, bool) {
	b.entityMu.RLock()
	defer b.entityMu.RUnlock()
	e, ok := b.byID[id]
	return e, ok
}

// Start subscribes to command topics, watches every coordinator for poll
// failures, attaches registered entities (publishing their cached state)
// and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	if b.started {
		b.startMu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.startMu.Unlock()

	if err := b.health.PublishStarting(); err != nil {
		b.log().Warn("failed to publish starting status", "error", err)
	}

	topic := mqtt.Topics{}.AllCommands()
	if err := b.opts.MQTT.Subscribe(topic, b.opts.QoS, b.dispatchCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.log().Info("subscribed to commands", "topic", topic)

	b.watchFailures()

	for _, e := range b.Entities() {
		b.attach(e)
	}

	b.health.Start(ctx)

	b.log().Info("bridge started",
		"devices", len(b.opts.Registry.Devices()),
		"entities", len(b.Entities()),
	)
	return nil
}

func (b *Bridge) attach(e entity.Entity) {
	if err := e.Attach(); err != nil && !errors.Is(err, entity.ErrAlreadyAttached) {
		b.log().Error("failed to attach entity", "entity_id", e.ID(), "error", err)
	}
}

// watchFailures subscribes to every coordinator so poll failures reach the
// log and the broadcaster.
func (b *Bridge) watchFailures() {
	for _, e := range b.opts.Registry.Devices() {
		if e.Coordinator == nil {
			continue
		}
		deviceID := e.Device.ID
		token, err := e.Coordinator.Subscribe(func(u coordinator.Update) {
			if u.Err == nil || u.Replay {
				return
			}
			b.handlePollFailure(u)
		})
		if err != nil {
			b.log().Warn("failed to watch device", "device_id", deviceID, "error", err)
			continue
		}
		b.startMu.Lock()
		b.watchTokens[deviceID] = token
		b.startMu.Unlock()
	}
}

func (b *Bridge) handlePollFailure(u coordinator.Update) {
	code := cloud.ErrorCode(u.Err)
	b.log().Debug("broadcasting poll failure",
		"device_id", u.DeviceID,
		"failures", u.Failures,
		"error_code", code,
		"error", u.Err,
	)

	if b.opts.Broadcaster != nil {
		b.opts.Broadcaster.Broadcast(EventPollFailed, PollFailedEvent{
			DeviceID:  u.DeviceID,
			Failures:  u.Failures,
			Error:     u.Err.Error(),
			ErrorCode: code,
			Timestamp: u.Time,
		})
	}
}

// Stop detaches entities, waits for in-flight commands and queued states,
// then stops health reporting (publishing "stopping"). Safe to call more
// than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cmdMu.Lock()
		b.stopping = true
		b.cmdMu.Unlock()
		b.ctxCancel()

		b.startMu.Lock()
		tokens := b.watchTokens
		b.watchTokens = make(map[string]coordinator.Token)
		b.startMu.Unlock()

		for deviceID, token := range tokens {
			if c, err := b.opts.Registry.Coordinator(deviceID); err == nil {
				c.Unsubscribe(token)
			}
		}
		for _, e := range b.Entities() {
			e.Detach()
		}

		b.wg.Wait()
		b.states.close()
		b.health.Stop()

		b.log().Info("bridge stopped")
	})
}

// PublishHealth publishes the current health immediately. Wire it to the
// MQTT client's on-connect callback so a reconnect replaces the LWT.
func (b *Bridge) PublishHealth() error {
	return b.health.PublishNow()
}

// Health returns the current health without publishing it.
func (b *Bridge) Health() HealthMessage {
	return b.health.Current()
}

// PublishAll republishes every entity's current state to MQTT only.
func (b *Bridge) PublishAll() {
	for _, e := range b.Entities() {
		b.publishMQTT(e.State())
	}
}

// PublishState implements entity.Sink. It only queues the state; MQTT,
// telemetry, history and broadcast happen on the entity's queue worker.
func (b *Bridge) PublishState(s entity.State) {
	if !b.states.push(s) {
		b.log().Debug("bridge stopped, state not published", "entity_id", s.EntityID)
	}
}

func (b *Bridge) deliverState(s entity.State) {
	b.publishMQTT(s)
	b.writeTelemetry(s)
	b.recordHistory(s)

	if b.opts.Broadcaster != nil {
		b.opts.Broadcaster.Broadcast(EventStateChanged, s)
	}
}

func (b *Bridge) publishMQTT(s entity.State) {
	payload, err := json.Marshal(newStateMessage(s))
	if err != nil {
		b.log().Error("failed to marshal state", "entity_id", s.EntityID, "error", err)
		return
	}

	if err := b.opts.MQTT.Publish(mqtt.Topics{}.State(s.EntityID), payload, b.opts.QoS, true); err != nil {
		b.log().Warn("failed to publish state", "entity_id", s.EntityID, "error", err)
	}
}

func (b *Bridge) writeTelemetry(s entity.State) {
	if b.opts.Telemetry == nil || s.Stale {
		return
	}

	switch s.Kind {
	case device.KindSensor:
		value, ok := s.Attributes["value"].(float64)
		if !ok {
			return
		}
		reading := influxdb.SensorReading{
			SiteID:   b.opts.SiteID,
			EntityID: s.EntityID,
			DeviceID: s.DeviceID,
			Field:    strings.TrimPrefix(s.EntityID, s.DeviceID+"-"),
			Value:    value,
			Time:     s.Time,
		}
		if e, ok := b.Entity(s.EntityID); ok {
			if sf, ok := e.(sensorField); ok {
				desc := sf.Description()
				reading.Field = string(sf.Field())
				reading.Unit = desc.Unit
				reading.DeviceClass = desc.DeviceClass
			}
		}
		b.opts.Telemetry.WriteSensorReading(reading)

	case device.KindLight:
		isOn, _ := s.Attributes["is_on"].(bool)
		brightness, _ := s.Attributes["brightness"].(int)
		b.opts.Telemetry.WriteLightState(influxdb.LightReading{
			SiteID:     b.opts.SiteID,
			EntityID:   s.EntityID,
			IsOn:       isOn,
			Brightness: brightness,
			Time:       s.Time,
		})
	}
}

func (b *Bridge) recordHistory(s entity.State) {
	if b.opts.History == nil {
		return
	}

	state := make(device.State, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		state[k] = v
	}
	state["stale"] = s.Stale

	source := device.StateHistorySourcePoll
	if s.Source == entity.SourceCommand {
		source = device.StateHistorySourceCommand
	}

	// Not tied to b.ctx: states queued before Stop are still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := b.opts.History.RecordStateChange(ctx, s.EntityID, s.DeviceID, state, source); err != nil {
		b.log().Warn("failed to record state history", "entity_id", s.EntityID, "error", err)
	}
}

// Execute runs a command against a light entity.
//
// Parameters:
//   - ctx: Bounds every vendor request the command makes
//   - entityID: Target entity
//   - command: CommandTurnOn or CommandTurnOff
//   - params: Optional turn_on parameters
//
// Returns:
//   - error: ErrUnknownEntity, ErrNotSupported, ErrInvalidCommand, or the
//     *entity.CommandError from the light
func (b *Bridge) Execute(ctx context.Context, entityID, command string, params CommandParameters) error {
	e, ok := b.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	light, ok := e.(lightControl)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupported, entityID)
	}

	switch command {
	case CommandTurnOn:
		return light.TurnOn(ctx, entity.TurnOnParams{
			Brightness:      params.Brightness,
			ColorTempKelvin: params.ColorTempKelvin,
		})
	case CommandTurnOff:
		return light.TurnOff(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
}

// dispatchCommand is the MQTT handler. Commands run on their own goroutine
// so a slow vendor request does not stall the MQTT client.
func (b *Bridge) dispatchCommand(topic string, payload []byte) error {
	b.cmdMu.Lock()
	if b.stopping {
		b.cmdMu.Unlock()
		return coordinator.ErrStopped
	}
	b.wg.Add(1)
	b.cmdMu.Unlock()

	go func() {
		defer b.wg.Done()
		b.handleCommand(topic, payload)
	}()
	return nil
}

// handleCommand executes one MQTT command and publishes its ack.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	category, entityID, err := mqtt.ParseEntityTopic(topic)
	if err != nil || category != "command" {
		b.log().Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(entityID, cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err))
		return
	}

	b.log().Info("received command",
		"command_id", cmd.ID,
		"entity_id", entityID,
		"command", cmd.Command,
		"source", cmd.Source,
	)

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.CommandTimeout)
	defer cancel()

	b.publishAck(entityID, cmd, b.Execute(ctx, entityID, cmd.Command, cmd.Parameters))
}

func (b *Bridge) publishAck(entityID string, cmd CommandMessage, err error) {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		EntityID:  entityID,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
		b.log().Warn("command failed",
			"command_id", cmd.ID,
			"entity_id", entityID,
			"code", ack.Error.Code,
			"error", err,
		)
	}

	payload, mErr := json.Marshal(ack)
	if mErr != nil {
		b.log().Error("failed to marshal ack", "error", mErr)
		return
	}
	if pErr := b.opts.MQTT.Publish(mqtt.Topics{}.Ack(entityID), payload, b.opts.QoS, false); pErr != nil {
		b.log().Warn("failed to publish ack", "entity_id", entityID, "error", pErr)
	}
}

// ErrorCode maps a command error to the code reported to the host.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownEntity):
		return "unknown_entity"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, coordinator.ErrStopped):
		return "stopped"
	default:
		return cloud.ErrorCode(err)
	}
}
