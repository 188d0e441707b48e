package cloud

// DeviceList is the body of GET /devices.
type DeviceList struct {
	Devices []PhysicalDevice `json:"deviceList"`
	Remotes []InfraredRemote `json:"infraredRemoteList"`
}

// PhysicalDevice is a device with a status endpoint.
type PhysicalDevice struct {
	ID                 string `json:"deviceId"`
	Name               string `json:"deviceName"`
	Type               string `json:"deviceType"`
	HubID              string `json:"hubDeviceId"`
	EnableCloudService bool   `json:"enableCloudService"`
}

// InfraredRemote is a virtual remote learned by a hub. It accepts commands
// but has no status endpoint.
type InfraredRemote struct {
	ID         string `json:"deviceId"`
	Name       string `json:"deviceName"`
	RemoteType string `json:"remoteType"`
	HubID      string `json:"hubDeviceId"`
}
