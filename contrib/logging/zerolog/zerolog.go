// Package zerolog adapts github.com/rs/zerolog to the bigtable client's Logger interface.
//
// Example:
//
//	zl := zerolog.New(os.Stderr).With().Timestamp().Str("app", "ingest").Logger()
//	session, _ := bigtable.NewSession(cfg,
//	    bigtable.WithLogger(btzerolog.New(zl)),
//	)
package zerolog

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Logger forwards structured log calls to a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// Compile-time assertion that Logger implements types.Logger.
var _ types.Logger = (*Logger)(nil)

// New wraps zl.
//
// Parameters:
//   - zl: The zerolog logger to write to
//
// Returns:
//   - *Logger: A types.Logger backed by zl
func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.log(l.zl.Debug(), msg, keysAndValues)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.log(l.zl.Info(), msg, keysAndValues)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.log(l.zl.Warn(), msg, keysAndValues)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.log(l.zl.Error(), msg, keysAndValues)
}

func (l *Logger) log(e *zerolog.Event, msg string, keysAndValues []any) {
	// A disabled level returns a nil event.
	if e == nil {
		return
	}

	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, "(MISSING)")
	}
	fields := make([]any, 0, len(keysAndValues))
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		val := keysAndValues[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		fields = append(fields, key, val)
	}

	e.Fields(fields).Msg(msg)
}
