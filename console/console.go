// Package console implements the server operator console: a line oriented
// command reader that prints the station table and stops the server.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/tcpserver"
)

const helpText = `commands:
  p  print stations and their listeners
  q  stop the server
`

// Source supplies what the console displays.
type Source interface {
	Stations() []string
	Sessions() []tcpserver.SessionInfo
}

type serverSource struct {
	srv *tcpserver.Server
}

// ServerSource adapts a running server to Source.
func ServerSource(srv *tcpserver.Server) Source {
	return serverSource{srv: srv}
}

func (s serverSource) Stations() []string { return s.srv.Registry().Names() }

func (s serverSource) Sessions() []tcpserver.SessionInfo { return s.srv.View().Sessions() }

// Console reads commands from in and writes output to out.
type Console struct {
	in   io.Reader
	out  io.Writer
	src  Source
	quit func()
	log  logger.Logger
}

// New creates a console. quit is called when the operator enters q.
func New(in io.Reader, out io.Writer, src Source, quit func(), log logger.Logger) *Console {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Console{in: in, out: out, src: src, quit: quit, log: log}
}

// Run processes commands until q, end of input or ctx is done. End of input
// leaves the server running.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
		close(lines)
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				err := <-errs
				if err != nil {
					return fmt.Errorf("read console input: %w", err)
				}
				return nil
			}

			if c.execute(strings.TrimSpace(line)) {
				return nil
			}
			c.prompt()
		}
	}
}

// execute runs one command and reports whether the console should exit.
func (c *Console) execute(cmd string) bool {
	switch strings.ToLower(cmd) {
	case "":
	case "p":
		c.PrintStations()
	case "q":
		c.log.Info("stop requested from console")
		if c.quit != nil {
			c.quit()
		}
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q\n%s", cmd, helpText)
	}

	return false
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

// PrintStations writes one row per station with the datagram addresses of
// the connections tuned to it.
func (c *Console) PrintStations() {
	names := c.src.Stations()
	listeners := make([][]string, len(names))
	for _, info := range c.src.Sessions() {
		if info.Station < 0 || info.Station >= len(names) {
			continue
		}
		listeners[info.Station] = append(listeners[info.Station], listenerAddr(info))
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Station", "Name", "Listeners", "Addresses"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for i, name := range names {
		tw.Append([]string{
			strconv.Itoa(i),
			name,
			strconv.Itoa(len(listeners[i])),
			strings.Join(listeners[i], " "),
		})
	}

	tw.Render()
}

func listenerAddr(info tcpserver.SessionInfo) string {
	host, _, err := net.SplitHostPort(info.Peer)
	if err != nil {
		host = info.Peer
	}
	return net.JoinHostPort(host, strconv.Itoa(int(info.UDPPort)))
}
