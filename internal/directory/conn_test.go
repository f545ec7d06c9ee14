package directory

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)

	go func() {
		for {
			conn, errAccept := ln.Accept()
			if errAccept != nil {
				return
			}

			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()

		mu.Lock()
		defer mu.Unlock()

		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	return ln.Addr().String()
}

func TestLDAPDialer_Cancellation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		startTLS bool
	}{
		{name: "tls handshake", url: "ldaps://"},
		{name: "starttls", url: "ldap://", startTLS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig("corp.local")
			cfg.URL = tt.url + silentServer(t)
			cfg.StartTLS = tt.startTLS
			cfg.ConnectTimeout = time.Minute

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			start := time.Now()

			conn, err := LDAPDialer{}.Dial(ctx, cfg)
			require.Error(t, err)
			assert.Nil(t, conn)
			require.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), 10*time.Second)
			assert.True(t, isTransportError(err))
		})
	}
}

func TestLDAPDialer_CancelledBeforeDial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LDAPDialer{}.Dial(ctx, testConfig("corp.local"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLDAPDialer_Refused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig("corp.local")
	cfg.URL = "ldap://" + addr

	_, err = LDAPDialer{}.Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, isTransportError(err))
}
