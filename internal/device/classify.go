package device

import "github.com/nerrad567/gray-logic-cloud/internal/cloud"

// lightTypes are the vendor device types exposed as lights.
var lightTypes = map[string]bool{
	"Ceiling Light":     true,
	"Ceiling Light Pro": true,
	"Color Bulb":        true,
	"Strip Light":       true,
}

// sensorTypes are the vendor device types exposed as power sensors.
var sensorTypes = map[string]bool{
	"Plug Mini (US)": true,
	"Plug Mini (JP)": true,
	"Plug":           true,
}

// Classify maps a vendor physical device type to a Kind.
// Returns false for types the bridge does not support.
func Classify(vendorType string) (Kind, bool) {
	switch {
	case lightTypes[vendorType]:
		return KindLight, true
	case sensorTypes[vendorType]:
		return KindSensor, true
	default:
		return "", false
	}
}

// CapabilitiesFor returns the capabilities of a device kind.
func CapabilitiesFor(kind Kind) []Capability {
	switch kind {
	case KindLight:
		return []Capability{CapOnOff, CapBrightness, CapColorTemperature}
	case KindSensor:
		return []Capability{CapOnOff, CapVoltage, CapCurrent, CapPower, CapEnergyDuration}
	case KindRemote:
		return []Capability{CapInfrared}
	default:
		return nil
	}
}

// FromDeviceList converts a discovery response into devices, physical devices
// first then remotes, each in the order the account lists them. Physical
// devices of unsupported types are skipped and returned separately.
//
// Parameters:
//   - list: Response from cloud.Client.ListDevices
//
// Returns:
//   - []Device: Supported devices in discovery order
//   - []cloud.PhysicalDevice: Devices skipped because their type is unknown
func FromDeviceList(list *cloud.DeviceList) ([]Device, []cloud.PhysicalDevice) {
	if list == nil {
		return nil, nil
	}

	devices := make([]Device, 0, len(list.Devices)+len(list.Remotes))
	var skipped []cloud.PhysicalDevice

	for _, pd := range list.Devices {
		kind, ok := Classify(pd.Type)
		if !ok || pd.ID == "" {
			skipped = append(skipped, pd)
			continue
		}
		devices = append(devices, Device{
			ID:           pd.ID,
			Name:         pd.Name,
			Kind:         kind,
			VendorType:   pd.Type,
			HubID:        pd.HubID,
			Capabilities: CapabilitiesFor(kind),
		})
	}

	// Anything in the infrared list is a remote, whatever its remote type
	for _, r := range list.Remotes {
		if r.ID == "" {
			continue
		}
		devices = append(devices, Device{
			ID:           r.ID,
			Name:         r.Name,
			Kind:         KindRemote,
			VendorType:   r.RemoteType,
			HubID:        r.HubID,
			Capabilities: CapabilitiesFor(KindRemote),
		})
	}

	return devices, skipped
}
