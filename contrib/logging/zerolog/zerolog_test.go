package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}

	return out
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	l.Info("transport connected", "endpoint", "bigtable.test:443", "generation", 2)
	l.Error("flush failed", "error", errors.New("2 mutation(s) failed"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	require.Equal(t, "info", lines[0]["level"])
	require.Equal(t, "transport connected", lines[0]["message"])
	require.Equal(t, "bigtable.test:443", lines[0]["endpoint"])
	require.InDelta(t, 2, lines[0]["generation"], 0)

	require.Equal(t, "error", lines[1]["level"])
	require.Equal(t, "2 mutation(s) failed", lines[1]["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf).Level(zerolog.WarnLevel))

	l.Debug("ignored")
	l.Info("ignored")
	l.Warn("kept", "attempt", 1)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "kept", lines[0]["message"])
}

func TestLoggerOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	l.Warn("odd", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "(MISSING)", lines[0]["dangling"])
}
