package entity

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

// Sensor state classes.
const (
	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
)

// Transform converts a raw field value: value = raw × Scale + Offset.
type Transform struct {
	Scale  float64
	Offset float64
}

// Apply returns raw × Scale + Offset. A zero Scale is treated as 1.
func (t Transform) Apply(raw float64) float64 {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	return raw*scale + t.Offset
}

// DefaultTransforms returns the built-in field transforms. The cloud reports
// electricCurrent in tenths of an ampere.
func DefaultTransforms() map[cloud.Field]Transform {
	return map[cloud.Field]Transform{
		cloud.FieldElectricCurrent: {Scale: 0.1},
	}
}

// FieldDescription is the static metadata of a sensor field.
type FieldDescription struct {
	Field       cloud.Field
	Label       string
	Unit        string
	DeviceClass string
	StateClass  string
}

var fieldDescriptions = map[cloud.Field]FieldDescription{
	cloud.FieldVoltage:          {cloud.FieldVoltage, "Voltage", "V", "voltage", StateClassMeasurement},
	cloud.FieldElectricCurrent:  {cloud.FieldElectricCurrent, "Current", "A", "current", StateClassMeasurement},
	cloud.FieldElectricityOfDay: {cloud.FieldElectricityOfDay, "Usage Today", "min", "duration", StateClassTotalIncreasing},
	cloud.FieldWeight:           {cloud.FieldWeight, "Power", "W", "power", StateClassMeasurement},
}

// DescribeField returns the metadata for a field.
func DescribeField(f cloud.Field) (FieldDescription, bool) {
	d, ok := fieldDescriptions[f]
	return d, ok
}

// Sensor exposes one numeric status field of a device.
//
// Thread Safety: All methods are safe for concurrent use.
type Sensor struct {
	dev       device.Device
	desc      FieldDescription
	transform Transform
	source    Source
	sink      Sink

	mu       sync.Mutex
	value    *float64
	stale    bool
	token    coordinator.Token
	attached bool

	publishMu sync.Mutex

	now func() time.Time
}

// NewSensor creates a detached sensor for one field.
//
// Returns:
//   - error: ErrUnknownField for fields without a description
func NewSensor(dev device.Device, field cloud.Field, source Source, sink Sink, transform Transform) (*Sensor, error) {
	desc, ok := DescribeField(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if sink == nil {
		sink = SinkFunc(func(State) {})
	}
	return &Sensor{
		dev:       dev,
		desc:      desc,
		transform: transform,
		source:    source,
		sink:      sink,
		now:       time.Now,
	}, nil
}

// NewSensors creates one sensor per supported field, in cloud.SensorFields
// order. transforms may be nil; missing fields fall back to DefaultTransforms.
func NewSensors(dev device.Device, source Source, sink Sink, transforms map[cloud.Field]Transform) []*Sensor {
	defaults := DefaultTransforms()
	sensors := make([]*Sensor, 0, len(cloud.SensorFields))
	for _, f := range cloud.SensorFields {
		t, ok := transforms[f]
		if !ok {
			t = defaults[f]
		}
		s, err := NewSensor(dev, f, source, sink, t)
		if err != nil {
			continue
		}
		sensors = append(sensors, s)
	}
	return sensors
}

// ID returns {deviceID}-{field}.
func (s *Sensor) ID() string { return s.dev.ID + "-" + string(s.desc.Field) }

// DeviceID returns the device ID.
func (s *Sensor) DeviceID() string { return s.dev.ID }

// Kind returns device.KindSensor.
func (s *Sensor) Kind() device.Kind { return device.KindSensor }

// Field returns the status field this sensor reads.
func (s *Sensor) Field() cloud.Field { return s.desc.Field }

// Description returns the field metadata.
func (s *Sensor) Description() FieldDescription { return s.desc }

// Value returns the transformed value; false if never reported.
func (s *Sensor) Value() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return 0, false
	}
	return *s.value, true
}

// Stale reports whether the last poll failed.
func (s *Sensor) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Attach subscribes to the coordinator.
func (s *Sensor) Attach() error {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.attached = true
	s.mu.Unlock()

	token, err := s.source.Subscribe(s.handleUpdate)
	if err != nil {
		s.mu.Lock()
		s.attached = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Detach unsubscribes from the coordinator.
func (s *Sensor) Detach() {
	s.mu.Lock()
	token, attached := s.token, s.attached
	s.attached = false
	s.token = ""
	s.mu.Unlock()

	if attached && token != "" {
		s.source.Unsubscribe(token)
	}
}

func (s *Sensor) handleUpdate(u coordinator.Update) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if u.Err != nil {
		s.stale = true
	} else {
		s.stale = false
		if raw, ok := u.Snapshot.Number(s.desc.Field); ok {
			v := s.transform.Apply(raw)
			s.value = &v
		} else {
			s.value = nil
		}
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.sink.PublishState(state)
}

// State returns the current sensor state.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Sensor) stateLocked() State {
	attrs := map[string]any{
		"unit":         s.desc.Unit,
		"device_class": s.desc.DeviceClass,
		"state_class":  s.desc.StateClass,
		"value":        nil,
	}
	if s.value != nil {
		attrs["value"] = *s.value
	}

	return State{
		EntityID:   s.ID(),
		DeviceID:   s.dev.ID,
		Kind:       device.KindSensor,
		Name:       s.dev.Name + " " + s.desc.Label,
		Stale:      s.stale,
		Attributes: attrs,
		Source:     SourcePoll,
		Time:       s.now().UTC(),
	}
}
