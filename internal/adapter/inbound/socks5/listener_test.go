package socks5

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/inbound/proxy"
	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
	domainsocks5 "github.com/Annihilater/net-relay/internal/domain/socks5"
)

type pipeDialer struct {
	remote net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.remote, nil
}

func startListener(t *testing.T, cfg config.Config, dialer proxy.Dialer) (addr string, stop func()) {
	t.Helper()
	store := config.NewStore(cfg)
	deps := &proxy.Deps{
		Store:  store,
		Stats:  memory.NewStatsRegistry(100),
		Dialer: dialer,
	}
	ln := New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	bound := make(chan string, 1)
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	bound <- listener.Addr().String()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	go func() {
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			go ln.handle(ctx, c)
		}
	}()

	return <-bound, cancel
}

func TestSocks5Listener_NoAuthConnectSucceeds(t *testing.T) {
	t.Parallel()

	targetLocal, targetRemote := net.Pipe()
	defer targetLocal.Close()

	cfg := config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.AccessControl.AllowByDefault = true

	addr, stop := startListener(t, cfg, &pipeDialer{remote: targetRemote})
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	// Method negotiation: offer NoAuth.
	if _, err := c.Write([]byte{domainsocks5.Version, 1, domainsocks5.MethodNoAuth}); err != nil {
		t.Fatalf("write method request: %v", err)
	}
	methodReply := make([]byte, 2)
	if _, err := io.ReadFull(c, methodReply); err != nil {
		t.Fatalf("read method reply: %v", err)
	}
	if methodReply[1] != domainsocks5.MethodNoAuth {
		t.Fatalf("method reply = %v, want MethodNoAuth", methodReply)
	}

	// CONNECT request to a domain target.
	req := []byte{domainsocks5.Version, domainsocks5.CmdConnect, 0x00, domainsocks5.ATYPDomain}
	req = append(req, byte(len("example.com")))
	req = append(req, "example.com"...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, 443)
	req = append(req, portBuf...)
	if _, err := c.Write(req); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	connectReply := make([]byte, 10)
	if _, err := io.ReadFull(c, connectReply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if connectReply[1] != domainsocks5.RepSucceeded {
		t.Fatalf("connect reply REP = %d, want RepSucceeded", connectReply[1])
	}

	// Relay should now be active: bytes written by the client arrive at the target.
	if _, err := c.Write([]byte("ping")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(targetLocal, buf); err != nil {
		t.Fatalf("target read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("target received %q, want ping", buf)
	}
}

func TestSocks5Listener_IPDenyClosesSilently(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.AccessControl.IPBlacklist = []string{"127.0.0.1"}

	addr, stop := startListener(t, cfg, nil)
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = c.Read(buf)
	if err != io.EOF {
		t.Fatalf("read after ip deny = %v, want io.EOF", err)
	}
}

func TestSocks5Listener_AuthRequiredRejectsWrongCredentials(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.AccessControl.AllowByDefault = true
	cfg.Security.AuthEnabled = true
	cfg.Security.Users = []config.User{{Username: "alice", Password: "good", Enabled: true}}

	addr, stop := startListener(t, cfg, nil)
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte{domainsocks5.Version, 1, domainsocks5.MethodUserPass}); err != nil {
		t.Fatalf("write method request: %v", err)
	}
	methodReply := make([]byte, 2)
	if _, err := io.ReadFull(c, methodReply); err != nil {
		t.Fatalf("read method reply: %v", err)
	}
	if methodReply[1] != domainsocks5.MethodUserPass {
		t.Fatalf("method reply = %v, want MethodUserPass", methodReply)
	}

	up := []byte{domainsocks5.AuthVersion, byte(len("alice"))}
	up = append(up, "alice"...)
	up = append(up, byte(len("wrong")))
	up = append(up, "wrong"...)
	if _, err := c.Write(up); err != nil {
		t.Fatalf("write auth request: %v", err)
	}

	authReply := make([]byte, 2)
	if _, err := io.ReadFull(c, authReply); err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	if authReply[1] != domainsocks5.AuthStatusFailure {
		t.Fatalf("auth reply status = %d, want AuthStatusFailure", authReply[1])
	}
}
