// Package influxdb is the InfluxDB v2 backend of the sensor archive.
//
// Readings go to the sensor_readings measurement, tagged with room and
// topic. Writes are queued and sent in batches of archive.influxdb.batch_size
// or every flush_interval seconds; a batch that fails is reported through
// SetOnError, not to the caller of WriteSensorReading.
//
//	client, err := influxdb.Connect(cfg.Archive.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteSensorReading("kitchen", topic, 21.5, raw, time.Now())
package influxdb
