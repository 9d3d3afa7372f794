// Package logging provides structured logging for the Gray Logic Panel.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log access tokens. The session package only ever logs whether a token
// is present.
package logging
