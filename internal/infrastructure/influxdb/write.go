package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSensor = "sensor_reading"
	measurementLight  = "light_state"
)

// SensorReading is one sensor entity value at a point in time.
type SensorReading struct {
	SiteID      string
	EntityID    string
	DeviceID    string
	Field       string // vendor field, e.g. "voltage"
	Unit        string
	DeviceClass string
	Value       float64
	Time        time.Time
}

// LightReading is a light entity's state at a point in time.
type LightReading struct {
	SiteID     string
	EntityID   string
	IsOn       bool
	Brightness int // 0-255
	Time       time.Time
}

// WriteSensorReading queues a sensor value. Dropped silently when the
// client is closed.
//
// Example:
//
//	client.WriteSensorReading(influxdb.SensorReading{
//	    EntityID: "6055F92FCFD2-voltage", DeviceID: "6055F92FCFD2",
//	    Field: "voltage", Unit: "V", Value: 229.8, Time: time.Now(),
//	})
func (c *Client) WriteSensorReading(r SensorReading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(r))
}

// WriteLightState queues a light's on/off and brightness state.
func (c *Client) WriteLightState(r LightReading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(lightPoint(r))
}

func sensorPoint(r SensorReading) *write.Point {
	tags := map[string]string{
		"entity_id": r.EntityID,
		"device_id": r.DeviceID,
		"field":     r.Field,
	}
	if r.SiteID != "" {
		tags["site_id"] = r.SiteID
	}
	if r.Unit != "" {
		tags["unit"] = r.Unit
	}
	if r.DeviceClass != "" {
		tags["device_class"] = r.DeviceClass
	}

	return write.NewPoint(measurementSensor, tags,
		map[string]interface{}{"value": r.Value},
		pointTime(r.Time),
	)
}

func lightPoint(r LightReading) *write.Point {
	tags := map[string]string{"entity_id": r.EntityID}
	if r.SiteID != "" {
		tags["site_id"] = r.SiteID
	}

	return write.NewPoint(measurementLight, tags,
		map[string]interface{}{
			"is_on":      r.IsOn,
			"brightness": int64(r.Brightness),
		},
		pointTime(r.Time),
	)
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
