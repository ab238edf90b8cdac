// Package listener receives the audio datagrams a snowcast station streams to
// a client and copies them, unparsed, to a writer such as stdout.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// MaxDatagram is the largest datagram read in one call.
const MaxDatagram = 64 * 1024

// Listen binds a UDP socket on addr and runs Serve on it.
//
// Parameters:
//   - ctx: Stops the listener when done
//   - addr: Local "host:port" to bind, e.g. ":16384"
//   - out: Receives every datagram payload in arrival order
//
// Returns:
//   - nil when ctx is done, or the bind, read or write error
func Listen(ctx context.Context, addr string, out io.Writer) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}

	_, err = Serve(ctx, conn, out)
	return err
}

// Serve copies datagrams from conn to out until ctx is done or an error
// occurs. conn is closed on return.
//
// Returns:
//   - The number of payload bytes written to out
//   - nil when ctx is done, otherwise the read or write error
func Serve(ctx context.Context, conn net.PacketConn, out io.Writer) (int64, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	var total int64
	buf := make([]byte, MaxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				return total, nil
			}
			return total, fmt.Errorf("read datagram: %w", err)
		}

		if _, err := out.Write(buf[:n]); err != nil {
			return total, fmt.Errorf("write datagram: %w", err)
		}
		total += int64(n)
	}
}
