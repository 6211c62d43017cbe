package httpconnect

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Annihilater/net-relay/internal/adapter/inbound/proxy"
	"github.com/Annihilater/net-relay/internal/adapter/outbound/memory"
	"github.com/Annihilater/net-relay/internal/config"
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
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
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

	return listener.Addr().String(), cancel
}

func TestHTTPConnectListener_ConnectSucceeds(t *testing.T) {
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

	if _, err := c.Write([]byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")); err != nil {
		t.Fatalf("write connect request: %v", err)
	}

	reader := bufio.NewReader(c)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 200 Connection Established\r\n" {
		t.Fatalf("status line = %q, want 200 Connection Established", status)
	}
	// Consume the trailing CRLF terminating the (empty) header block.
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read trailing crlf: %v", err)
	}

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

func TestHTTPConnectListener_UnsupportedMethodReturns405(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.AccessControl.AllowByDefault = true

	addr, stop := startListener(t, cfg, nil)
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(c)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 405 Method Not Allowed\r\n" {
		t.Fatalf("status line = %q, want 405", status)
	}
}

func TestHTTPConnectListener_TargetDeniedReturns403(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.SetDefaults(func(string) bool { return false })
	cfg.AccessControl.AllowByDefault = false

	addr, stop := startListener(t, cfg, nil)
	defer stop()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("CONNECT example.com:443 HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(c)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 403 Forbidden\r\n" {
		t.Fatalf("status line = %q, want 403", status)
	}
}

func TestHTTPConnectListener_AuthRequiredReturns407(t *testing.T) {
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

	if _, err := c.Write([]byte("CONNECT example.com:443 HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(c)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if status != "HTTP/1.1 407 Proxy Authentication Required\r\n" {
		t.Fatalf("status line = %q, want 407", status)
	}
}

func TestParsePort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{in: "443", want: 443},
		{in: "1", want: 1},
		{in: "65535", want: 65535},
		{in: "0", wantErr: true},
		{in: "", wantErr: true},
		{in: "70000", wantErr: true},  // overflows uint16; must not wrap to 4464
		{in: "99999", wantErr: true},  // 5 digits, still overflows
		{in: "65536", wantErr: true},  // exactly one past the max
		{in: "abc", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parsePort(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parsePort(%q) = %d, nil; want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePort(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parsePort(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
