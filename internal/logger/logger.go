package logger

import (
	"go.uber.org/zap"
)

// Option adjusts the zap configuration before the logger is built.
type Option func(*zap.Config)

// WithEncoding selects "json" (the default) or "console" output.
func WithEncoding(encoding string) Option {
	return func(c *zap.Config) {
		c.Encoding = encoding
	}
}

// WithOutputPaths replaces the default stderr sink.
func WithOutputPaths(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

func New(verbosity string, opts ...Option) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	// one line per runtime error is enough; stack traces only for panics
	config.DisableStacktrace = true
	for _, opt := range opts {
		opt(&config)
	}
	return config.Build(zap.Fields(zap.String("component", "smmacc")))
}
