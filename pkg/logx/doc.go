// Package logx is a thin zerolog wrapper with hot-reloadable sinks.
//
// It exposes a value-type Logger with functional Field attributes and a
// Service that owns the configured outputs (console, JSON file). Service.Apply
// swaps level and sinks at runtime without invalidating loggers already handed
// out, which keeps config hot reload simple for long-lived components.
package logx
