package device

import (
	"slices"
	"time"
)

// Kind is the platform entity family a device is exposed as.
type Kind string

// Device kinds.
const (
	KindLight  Kind = "light"
	KindSensor Kind = "sensor"
	KindRemote Kind = "remote"
)

// Capability describes one thing a device can do or report.
type Capability string

// Capabilities.
const (
	CapOnOff            Capability = "on_off"
	CapBrightness       Capability = "brightness"
	CapColorTemperature Capability = "color_temperature"
	CapVoltage          Capability = "voltage"
	CapCurrent          Capability = "current"
	CapPower            Capability = "power"
	CapEnergyDuration   Capability = "energy_duration"
	CapInfrared         Capability = "infrared"
)

// Device is one device discovered on the cloud account.
// Devices are immutable once discovered; rediscovery replaces the record.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	VendorType string `json:"vendor_type"`

	// HubID is the bridge hub the device reaches the cloud through, if any.
	HubID string `json:"hub_id,omitempty"`

	Capabilities []Capability `json:"capabilities"`

	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasCapability reports whether the device has the given capability.
func (d *Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// HasStatus reports whether the device has a status endpoint to poll.
// Infrared remotes are command-only.
func (d *Device) HasStatus() bool {
	return d.Kind != KindRemote
}

// Clone returns a copy that shares no slices with d.
func (d Device) Clone() Device {
	d.Capabilities = slices.Clone(d.Capabilities)
	return d
}

// ValidKinds returns all known kinds.
func ValidKinds() []Kind {
	return []Kind{KindLight, KindSensor, KindRemote}
}
