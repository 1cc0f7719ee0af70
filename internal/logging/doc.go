// Package logging configures the structured logging backend (smplog, a
// zerolog wrapper) once per process and exposes the small Logger interface
// the protocol core depends on instead of importing smplog directly.
//
// The base level comes from whichever config.ServerConfig or
// config.ClientConfig a binary loaded (its LogLevel field), with the
// CORRESPOND_LOG_* environment variables layered on top so an operator can
// override a deployed config.toml without editing it.
package logging
