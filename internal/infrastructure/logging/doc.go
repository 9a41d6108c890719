// Package logging provides structured logging built on log/slog.
//
// The wrapper adds default service/version fields and config-driven
// level, format, and output selection.
package logging
