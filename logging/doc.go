// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It ships a slog adapter, a configurable constructor and
// a no-op implementation for tests.
package logging
