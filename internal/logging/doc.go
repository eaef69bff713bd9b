// Package logging wires log/slog with the console and JSON handlers used by
// every component of the pipeline, plus the shared attribute helpers and
// standardized field keys.
package logging
