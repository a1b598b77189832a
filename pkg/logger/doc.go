// Package logger provides a slog factory with environment presets and
// attribute helpers shared across the engine's components.
//
// Components accept a *slog.Logger via functional options and default to
// slog.Default(), so the factory is a convenience, not a requirement:
//
//	log := logger.New(logger.WithProduction("meterkit"))
//	logger.SetAsDefault(log)
package logger
