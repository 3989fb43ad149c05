package logger

// Logger is the minimal structured logging surface the engine needs.
// Keyvals alternate string keys and arbitrary values.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
