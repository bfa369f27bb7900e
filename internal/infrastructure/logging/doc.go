// Package logging configures log/slog for mqtt-lightify and mqtt-archive.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Every record carries the service name and build version. Components add
// their own attribute with With("component", "bridge").
//
// Credentials (MQTT and Elasticsearch passwords, the InfluxDB token) are
// never logged.
package logging
