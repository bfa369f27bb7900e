// Package api serves the optional HTTP surface of both binaries.
//
// Endpoints:
//
//	GET /health    JSON session state and dependency checks; 503 when degraded
//	GET /metrics   Prometheus exposition of the process registry
//
// The server is enabled with api.enabled in config.yaml and follows the same
// lifecycle as the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start()
//	defer server.Close()
package api
