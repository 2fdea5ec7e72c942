// Package logging builds the zap loggers used by verifyd.
//
// Loggers write JSON or console output to stdout and can tee into an
// OpenTelemetry log provider through the otelzap bridge. Every
// context-aware method adds trace, session and request correlation fields
// found in the context.
//
// Configuration follows the usual precedence: defaults, then the
// logging section of the config file, then VERIFYD_LOGGING_* variables.
//
//	logging:
//	  level: debug
//	  format: console
//	  sampling:
//	    enabled: false
//
// Sensitive keys (tokens, passwords, authorization headers) are redacted at
// the encoder, so callers do not need to remember to scrub fields.
package logging
