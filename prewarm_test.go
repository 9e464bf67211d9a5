package bigtable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrewarmIPEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "127.0.0.1:8086"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, Prewarm(ctx, cfg))
}

func TestPrewarmSkipsLookupWithOverrideIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "bigtable.invalid:443"
	cfg.OverrideEndpointIP = "127.0.0.1"

	require.NoError(t, Prewarm(context.Background(), cfg))
}

func TestPrewarmReportsLookupFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "bigtable.invalid:443"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.ErrorContains(t, Prewarm(ctx, cfg), "resolve bigtable.invalid")
}
