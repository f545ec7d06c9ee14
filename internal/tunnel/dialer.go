package tunnel

import (
	"context"

	"github.com/ldapgate/ldapgate/internal/directory"
)

// Dialer returns a directory.Dialer that brings the tunnel up on demand and
// dials the directory through it.
func (t *Tunnel) Dialer(next directory.Dialer) directory.Dialer {
	return directory.DialerFunc(func(ctx context.Context, cfg directory.Config) (directory.Conn, error) {
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}

		endpoint, serverName, err := t.Endpoint(cfg.URL)
		if err != nil {
			return nil, err
		}

		cfg.URL = endpoint
		if cfg.TLSServerName == "" {
			cfg.TLSServerName = serverName
		}

		return next.Dial(ctx, cfg)
	})
}
