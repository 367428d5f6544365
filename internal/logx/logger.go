package logx

import (
	"go.uber.org/zap"
)

// L is the process logger. It discards everything until Init runs.
var L = zap.NewNop()

// Init builds the process logger: JSON production output when env is "prod",
// readable development output otherwise.
func Init(env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	// Local dev readability
	if env != "prod" {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	L = logger
	return logger, nil
}

// Named returns l, or L when l is nil, scoped to a component.
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = L
	}
	return l.Named(name)
}
