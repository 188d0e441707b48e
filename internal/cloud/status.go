package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PowerState is the reported power of a switchable device.
type PowerState string

// Power states.
const (
	PowerOn  PowerState = "on"
	PowerOff PowerState = "off"
)

// Field names a numeric status field exposed as a sensor.
type Field string

// Numeric sensor fields.
const (
	FieldVoltage          Field = "voltage"
	FieldElectricCurrent  Field = "electricCurrent"
	FieldElectricityOfDay Field = "electricityOfDay"
	FieldWeight           Field = "weight"
)

// SensorFields lists the numeric fields in the order sensors are created.
var SensorFields = []Field{FieldVoltage, FieldElectricCurrent, FieldElectricityOfDay, FieldWeight}

// Status is one decoded status snapshot.
//
// Every optional field is a pointer; nil means the device did not report it.
// A Status is immutable once built: coordinators replace snapshots wholesale
// and hand out clones.
type Status struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type,omitempty"`
	HubID      string `json:"hub_id,omitempty"`

	Power            *PowerState `json:"power,omitempty"`
	Brightness       *int        `json:"brightness,omitempty"`
	ColorTemperature *int        `json:"color_temperature,omitempty"`

	Voltage          *float64 `json:"voltage,omitempty"`
	ElectricCurrent  *float64 `json:"electric_current,omitempty"`
	ElectricityOfDay *float64 `json:"electricity_of_day,omitempty"`
	Weight           *float64 `json:"weight,omitempty"`

	Online  *bool   `json:"online,omitempty"`
	Version *string `json:"version,omitempty"`
}

// IsOn reports whether the device reported power "on".
func (s *Status) IsOn() bool {
	return s != nil && s.Power != nil && *s.Power == PowerOn
}

// Number returns the raw value of a numeric sensor field.
func (s *Status) Number(f Field) (float64, bool) {
	if s == nil {
		return 0, false
	}
	var v *float64
	switch f {
	case FieldVoltage:
		v = s.Voltage
	case FieldElectricCurrent:
		v = s.ElectricCurrent
	case FieldElectricityOfDay:
		v = s.ElectricityOfDay
	case FieldWeight:
		v = s.Weight
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Clone returns a deep copy. Clone of nil is nil.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	c.Power = clonePtr(s.Power)
	c.Brightness = clonePtr(s.Brightness)
	c.ColorTemperature = clonePtr(s.ColorTemperature)
	c.Voltage = clonePtr(s.Voltage)
	c.ElectricCurrent = clonePtr(s.ElectricCurrent)
	c.ElectricityOfDay = clonePtr(s.ElectricityOfDay)
	c.Weight = clonePtr(s.Weight)
	c.Online = clonePtr(s.Online)
	c.Version = clonePtr(s.Version)
	return &c
}

// Equal reports whether two snapshots carry the same values.
func (s *Status) Equal(o *Status) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.DeviceID == o.DeviceID &&
		s.DeviceType == o.DeviceType &&
		s.HubID == o.HubID &&
		ptrEqual(s.Power, o.Power) &&
		ptrEqual(s.Brightness, o.Brightness) &&
		ptrEqual(s.ColorTemperature, o.ColorTemperature) &&
		ptrEqual(s.Voltage, o.Voltage) &&
		ptrEqual(s.ElectricCurrent, o.ElectricCurrent) &&
		ptrEqual(s.ElectricityOfDay, o.ElectricityOfDay) &&
		ptrEqual(s.Weight, o.Weight) &&
		ptrEqual(s.Online, o.Online) &&
		ptrEqual(s.Version, o.Version)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DecodeStatus builds a Status from the body of a status response.
//
// Decoding is tolerant: numeric fields may arrive as JSON numbers or numeric
// strings, unknown keys are ignored, and a field with an unusable value is
// treated as absent rather than failing the whole snapshot.
//
// Parameters:
//   - body: The "body" member of the response envelope
//
// Returns:
//   - *Status: Decoded snapshot
//   - error: If body is not a JSON object
func DecodeStatus(body []byte) (*Status, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty status body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding status body: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("status body is null")
	}

	s := &Status{
		DeviceID:   stringField(raw, "deviceId"),
		DeviceType: stringField(raw, "deviceType"),
		HubID:      stringField(raw, "hubDeviceId"),
	}

	if p := strings.ToLower(stringField(raw, "power")); p == string(PowerOn) || p == string(PowerOff) {
		ps := PowerState(p)
		s.Power = &ps
	}
	if v, ok := numberField(raw, "brightness"); ok {
		b := int(v)
		s.Brightness = &b
	}
	if v, ok := numberField(raw, "colorTemperature"); ok {
		k := int(v)
		s.ColorTemperature = &k
	}
	for _, f := range SensorFields {
		if v, ok := numberField(raw, string(f)); ok {
			s.setNumber(f, v)
		}
	}
	if o := strings.ToLower(stringField(raw, "onlineStatus")); o != "" {
		online := o == "online"
		s.Online = &online
	}
	if v := stringField(raw, "version"); v != "" {
		s.Version = &v
	}

	return s, nil
}

func (s *Status) setNumber(f Field, v float64) {
	switch f {
	case FieldVoltage:
		s.Voltage = &v
	case FieldElectricCurrent:
		s.ElectricCurrent = &v
	case FieldElectricityOfDay:
		s.ElectricityOfDay = &v
	case FieldWeight:
		s.Weight = &v
	}
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// numberField reads a finite number given as a JSON number or a numeric
// string.
func numberField(raw map[string]any, key string) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch v := raw[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
