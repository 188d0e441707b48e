// Package influxdb records entity telemetry in InfluxDB.
//
// Sensor values (voltage, current, energy duration, power) are written to
// the "sensor_reading" measurement and light state to "light_state", both
// tagged by entity ID so dashboards can chart any single entity. Writes are
// batched and non-blocking according to the influxdb section of the
// configuration (batch_size, flush_interval).
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
// Connection and health check errors are returned directly. Write errors are
// delivered asynchronously via SetOnError.
package influxdb
