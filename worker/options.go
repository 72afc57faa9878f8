package worker

import "log/slog"

// Option configures a Worker or Client.
type Option func(*config)

type config struct {
	logger *slog.Logger
	name   string
}

func defaultConfig() config {
	return config{
		logger: slog.Default(),
		name:   "awl",
	}
}

// WithLogger sets the logger for dispatch and load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithName labels log records, e.g. with the module path or a session id.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}
