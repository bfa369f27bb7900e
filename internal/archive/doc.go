// Package archive stores selected sensor readings from MQTT in Elasticsearch
// or InfluxDB.
//
// The archiver subscribes to a status filter (default "hm/status/#"). A
// message is stored only when its topic appears in the configured topic to
// room map and its payload marks the value as changed:
//
//	hm/status/HmIP-eTRV-2 000A18A9A3C01B:1/ACTUAL_TEMPERATURE
//	{"val": 21.5, "hm": {"change": true}}
//
// Elasticsearch documents go to a daily index "<prefix>-YYYY-MM-DD" (UTC).
// InfluxDB readings go to the sensor_readings measurement tagged with room
// and topic.
package archive
