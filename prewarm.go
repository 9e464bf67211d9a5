package bigtable

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Prewarm performs the slow one-time work of the first connection ahead of
// time: the endpoint host is resolved and the system root certificates are
// loaded. Both run concurrently.
//
// Nothing happens at package load; call Prewarm during application startup if
// first-call latency matters. Resolution is skipped when
// Config.OverrideEndpointIP is set.
//
// Parameters:
//   - ctx: Bounds the DNS lookup
//   - cfg: Configuration naming the endpoint
//
// Returns:
//   - error: Joined lookup and certificate errors, or nil
func Prewarm(ctx context.Context, cfg Config) error {
	addr, err := cfg.Address()
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var (
		wg      sync.WaitGroup
		dnsErr  error
		certErr error
	)

	if cfg.OverrideEndpointIP == "" && net.ParseIP(host) == nil {
		wg.Go(func() {
			if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
				dnsErr = fmt.Errorf("bigtable: resolve %s: %w", host, err)
			}
		})
	}
	wg.Go(func() {
		if _, err := x509.SystemCertPool(); err != nil {
			certErr = fmt.Errorf("bigtable: load root certificates: %w", err)
		}
	})
	wg.Wait()

	return errors.Join(dnsErr, certErr)
}
