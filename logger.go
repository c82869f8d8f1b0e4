package modhooks

// Logger defines the structured logger used across the runtime.
// Arguments are key-value pairs:
//
//	logger.Info("Module enabled", "module", "combat", "handlers", 3)
//
// The signature matches log/slog, so *slog.Logger satisfies it directly.
type Logger interface {
	// Info logs normal runtime events such as module transitions and discovery results.
	Info(msg string, args ...any)

	// Error logs failures that were handled, e.g. an isolated action handler error.
	Error(msg string, args ...any)

	// Warn logs unusual but tolerated conditions, e.g. a skipped descriptor.
	Warn(msg string, args ...any)

	// Debug logs diagnostic detail such as handler registration order.
	Debug(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
