// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a Logger value type with slog-like ergonomics (With + typed
// Field helpers) and a Service that owns the sinks so that level and
// outputs can be swapped at runtime on config reload without invalidating
// loggers already handed out to components.
package logx
