//go:build linux

package main

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/stations"
	"github.com/cyberinferno/snowcast/tcpserver"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) string {
	t.Helper()
	registry, err := stations.New([]string{"a.mp3", "b.mp3"})
	require.NoError(t, err)

	cfg := tcpserver.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv, err := tcpserver.New(cfg, registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv.Addr()
}

func runClient(t *testing.T, addr string, in io.Reader, out io.Writer) chan error {
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), addr, 16384, in, out, logger.NewNopLogger())
	}()
	return done
}

func TestRun_TuneAndQuit(t *testing.T) {
	addr := startServer(t)
	in, w := io.Pipe()
	defer w.Close()
	out := &syncBuffer{}

	done := runClient(t, addr, in, out)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("The server has 2 stations."))
	}, 2*time.Second, 5*time.Millisecond)

	_, err := io.WriteString(w, "1\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("New song announced: b.mp3"))
	}, 2*time.Second, 5*time.Millisecond)

	_, err = io.WriteString(w, "q\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not quit")
	}
}

func TestRun_InvalidStation(t *testing.T) {
	addr := startServer(t)
	in, w := io.Pipe()
	defer w.Close()
	out := &syncBuffer{}

	done := runClient(t, addr, in, out)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Welcome to Snowcast!"))
	}, 2*time.Second, 5*time.Millisecond)

	_, err := io.WriteString(w, "7\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "server closed the connection")
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the close")
	}
	assert.Contains(t, out.String(), "INVALID_COMMAND_REPLY: server received a SET_STATION command with an invalid station number")
}

func TestParsePort(t *testing.T) {
	p, err := parsePort("16384")
	require.NoError(t, err)
	assert.Equal(t, uint16(16384), p)

	_, err = parsePort("65536")
	assert.Error(t, err)
}
