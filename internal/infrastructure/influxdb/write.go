package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementSensorReadings is the measurement archived sensor readings are written to.
const MeasurementSensorReadings = "sensor_readings"

// WriteSensorReading records one archived sensor message.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - room: Room name from the archive topic map (tag)
//   - topic: Source MQTT topic (tag)
//   - value: Reading value; numbers and booleans become the "value" field, anything else is skipped
//   - data: Raw JSON payload, stored in the "data" field
//   - ts: Reading timestamp
//
// Example:
//
//	client.WriteSensorReading("kitchen", "hm/status/kitchen/TEMPERATURE", 21.5, raw, time.Now())
func (c *Client) WriteSensorReading(room, topic string, value any, data string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{
		"data": data,
	}
	switch v := value.(type) {
	case float64, float32, int, int64, bool:
		fields["value"] = v
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementSensorReadings,
		map[string]string{
			"room":  room,
			"topic": topic,
		},
		fields,
		ts,
	))
}
