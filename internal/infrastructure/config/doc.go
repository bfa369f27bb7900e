// Package config loads the YAML file shared by mqtt-lightify and
// mqtt-archive.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// environment variables. BROKER_ADDRESS and BRIDGE_ADDRESS accept host or
// host:port; the remaining overrides are named LIGHTIFY_<SECTION>_<KEY>.
// Command-line flags are applied last by the binaries themselves.
//
//	cfg, err := config.Load("configs/config.yaml", true)
//
// Keep passwords and the InfluxDB token in the environment rather than in
// the file.
package config
