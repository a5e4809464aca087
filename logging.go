package grpcserver

import "go.uber.org/zap"

// defaultLogger returns the package-wide fallback used whenever a caller
// doesn't supply one: a no-op logger, so the logging hook in spec §4.9
// stays entirely optional rather than forcing stderr output on every
// exchange.
func defaultLogger() *zap.Logger { return zap.NewNop() }

// NewDevelopmentLogger builds a zap logger suited to local development:
// human-readable, colorized, debug level. It's a thin convenience
// wrapper around zap.NewDevelopment so callers don't need their own zap
// import just to get a reasonable WithLogger argument.
func NewDevelopmentLogger() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// NewProductionLogger builds a zap logger suited to production: JSON
// output, info level and above.
func NewProductionLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
