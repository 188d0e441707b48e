// Package device holds the inventory of devices discovered on the cloud
// account and the local history of the entity states published for them.
//
// # Key Types
//
//   - Device: One discovered device, immutable once discovered
//   - Kind: light, sensor or remote, derived from the vendor device type
//   - Capability: What a device can do or report (on_off, brightness, voltage, ...)
//
// # Discovery
//
//	list, err := client.ListDevices(ctx)
//	devices, skipped := device.FromDeviceList(list)
//	for _, d := range devices {
//	    repo.Upsert(ctx, d)
//	}
//
// Unknown physical types are skipped. Every infrared remote is classified as a
// remote regardless of what it controls.
//
// # Persistence
//
// SQLiteRepository stores the inventory in the devices table so the bridge
// can start from the last known inventory when discovery fails.
// SQLiteStateHistoryRepository stores every published entity state in
// state_history.
//
// Both repositories are safe for concurrent use.
//
// # Related Files
//
//   - migrations/20260301_090000_device_inventory.up.sql
//   - migrations/20260301_093000_state_history.up.sql
package device
