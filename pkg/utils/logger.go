package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger tagged with service. When debug is true it uses the
// development config (human-readable, debug level); otherwise the production config
// (JSON, info level).
func NewLogger(debug bool, service string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}
