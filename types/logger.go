package types

// Logger is the structured logger used throughout the client.
//
// Each method takes a message followed by alternating key/value pairs.
// The interface is compatible with zap.SugaredLogger; see
// contrib/logging/zerolog for a zerolog-backed implementation.
// Implementations MUST be safe for concurrent use.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level.
	Error(msg string, keysAndValues ...any)
}
