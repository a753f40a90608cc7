// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It defines the application configuration
// structure: connection pool bounds, circuit breaker timeouts, upstream
// endpoints for the polling binary, telemetry address, and logging level.
package config
