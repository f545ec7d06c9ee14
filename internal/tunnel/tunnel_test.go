package tunnel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/ldapgate/ldapgate/internal/directory"
)

const (
	testUser     = "tunnel"
	testPassword = "bastion-secret"
)

// sshServer is an in-process SSH server accepting direct-tcpip channels.
type sshServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	wg       sync.WaitGroup
}

func newSSHServer(t *testing.T) *sshServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(password) == testPassword {
				return &ssh.Permissions{}, nil
			}

			return nil, errors.New("access denied")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &sshServer{listener: listener, config: config}

	s.wg.Add(1)

	go s.serve()

	t.Cleanup(func() {
		_ = listener.Close()
		s.wg.Wait()
	})

	return s
}

func (s *sshServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *sshServer) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		go s.handle(conn)
	}
}

func (s *sshServer) handle(conn net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()

		return
	}

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "direct-tcpip" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")

			continue
		}

		var target struct {
			DestAddr string
			DestPort uint32
			OrigAddr string
			OrigPort uint32
		}

		if err := ssh.Unmarshal(newChannel.ExtraData(), &target); err != nil {
			_ = newChannel.Reject(ssh.ConnectionFailed, err.Error())

			continue
		}

		upstream, err := net.Dial("tcp", net.JoinHostPort(target.DestAddr, strconv.Itoa(int(target.DestPort))))
		if err != nil {
			_ = newChannel.Reject(ssh.ConnectionFailed, err.Error())

			continue
		}

		channel, channelReqs, err := newChannel.Accept()
		if err != nil {
			_ = upstream.Close()

			continue
		}

		go ssh.DiscardRequests(channelReqs)

		go func() {
			_, _ = io.Copy(channel, upstream)
			_ = channel.Close()
		}()

		go func() {
			_, _ = io.Copy(upstream, channel)
			_ = upstream.Close()
		}()
	}
}

// echoServer echoes every byte back.
func echoServer(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()

				_, _ = io.Copy(conn, conn)
			}()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port
}

func testTunnel(t *testing.T, password string) *Tunnel {
	t.Helper()

	server := newSSHServer(t)

	tun := New(Config{
		Host:         "127.0.0.1",
		Port:         server.port(),
		Username:     testUser,
		Password:     password,
		RemoteHost:   "127.0.0.1",
		RemotePort:   echoServer(t),
		LocalPort:    0,
		ReadyTimeout: 5 * time.Second,
	})

	t.Cleanup(func() { _ = tun.Close() })

	return tun
}

func TestTunnel_Forward(t *testing.T) {
	t.Parallel()

	tun := testTunnel(t, testPassword)

	require.NoError(t, tun.Connect(context.Background()))
	require.NoError(t, tun.Connect(context.Background()), "connect is idempotent")
	assert.True(t, tun.Connected())

	conn, err := net.DialTimeout("tcp", tun.LocalAddr(), 2*time.Second)
	require.NoError(t, err)

	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestTunnel_WrongPassword(t *testing.T) {
	t.Parallel()

	tun := testTunnel(t, "wrong")

	err := tun.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, tun.Connected())
	assert.Empty(t, tun.LocalAddr())
}

func TestTunnel_NoAuthMethod(t *testing.T) {
	t.Parallel()

	tun := New(Config{Host: "127.0.0.1", Port: 22, Username: testUser})

	require.ErrorIs(t, tun.Connect(context.Background()), ErrNoAuthMethod)
}

func TestTunnel_EndpointAndStatus(t *testing.T) {
	t.Parallel()

	tun := testTunnel(t, testPassword)

	_, _, err := tun.Endpoint("ldaps://dc01.corp.local:636")
	require.ErrorIs(t, err, ErrNotConnected)

	status := tun.Status()
	assert.True(t, status.Enabled)
	assert.False(t, status.Connected)

	require.NoError(t, tun.Connect(context.Background()))

	endpoint, serverName, err := tun.Endpoint("ldaps://dc01.corp.local:636")
	require.NoError(t, err)
	assert.Equal(t, "ldaps://"+tun.LocalAddr(), endpoint)
	assert.Equal(t, "dc01.corp.local", serverName)

	status = tun.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "127.0.0.1", status.RemoteHost)
	assert.NotZero(t, status.LocalPort)

	require.NoError(t, tun.Close())
	assert.False(t, tun.Connected())
	assert.False(t, tun.Status().Connected)
}

type recordingConn struct{}

func (recordingConn) Bind(string, string) error { return nil }

func (recordingConn) Search(*ldap.SearchRequest) (*ldap.SearchResult, error) {
	return &ldap.SearchResult{}, nil
}

func (recordingConn) Close() error { return nil }

func TestTunnel_Dialer(t *testing.T) {
	t.Parallel()

	tun := testTunnel(t, testPassword)

	var seen directory.Config

	next := directory.DialerFunc(func(_ context.Context, cfg directory.Config) (directory.Conn, error) {
		seen = cfg

		return recordingConn{}, nil
	})

	conn, err := tun.Dialer(next).Dial(context.Background(), directory.Config{URL: "ldaps://dc01.corp.local:636"})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.True(t, tun.Connected())
	assert.Equal(t, "ldaps://"+tun.LocalAddr(), seen.URL)
	assert.Equal(t, "dc01.corp.local", seen.TLSServerName)
}
