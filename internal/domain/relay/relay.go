// Package relay implements the bidirectional TCP relay engine shared by
// the SOCKS5 and HTTP CONNECT listeners: once a tunnel is established,
// both protocols hand their client and target connections to Relay and
// wait for it to return final byte counts.
package relay

import (
	"io"
	"net"
	"sync"
)

// bufferSize is the fixed per-direction copy buffer: 8 KiB/direction,
// 16 KiB/connection.
const bufferSize = 8 * 1024

// Result holds the final byte counts for both relay directions.
type Result struct {
	// ClientToTarget is the number of bytes copied from client to target.
	ClientToTarget uint64
	// TargetToClient is the number of bytes copied from target to client.
	TargetToClient uint64
}

// halfCloser is satisfied by *net.TCPConn; connections that don't support
// a write half-close (e.g. net.Pipe in tests) are simply left alone.
type halfCloser interface {
	CloseWrite() error
}

// Relay concurrently copies client->target and target->client using a
// fixed 8 KiB buffer per direction. Each direction terminates
// independently on EOF, read error, or write error; on termination it
// half-closes (shuts down the write side of) the opposite connection, so
// that protocols layered on the tunnel (e.g. HTTP) see an end-of-stream
// signal without the whole socket being torn down early. Relay returns
// once both directions have terminated. Per-direction errors are
// swallowed — they can only truncate the byte counts, never surface as a
// structured error.
func Relay(client, target net.Conn) Result {
	var (
		wg                       sync.WaitGroup
		clientToTarget, targetToClient uint64
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, _ := io.CopyBuffer(target, client, make([]byte, bufferSize))
		clientToTarget = uint64(n)
		if hc, ok := target.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
	}()

	go func() {
		defer wg.Done()
		n, _ := io.CopyBuffer(client, target, make([]byte, bufferSize))
		targetToClient = uint64(n)
		if hc, ok := client.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
	}()

	wg.Wait()
	return Result{ClientToTarget: clientToTarget, TargetToClient: targetToClient}
}
