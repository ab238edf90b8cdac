package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/snowcast/controlclient"
	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/wire"
)

const serviceName = "snowcast_control"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "snowcast_control <servername> <serverport> <udpport>",
		Short: "Tune a snowcast listener to a station",
		Long: `Connect to a snowcast server, announce the UDP port a listener is
bound to and switch stations interactively. Enter a station number to
tune to it, or q to quit.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			udpPort, err := parsePort(args[2])
			if err != nil {
				return fmt.Errorf("invalid udp port %q", args[2])
			}
			if _, err := parsePort(args[1]); err != nil {
				return fmt.Errorf("invalid server port %q", args[1])
			}

			log := logger.NewConsoleLogger(os.Stderr, serviceName, logger.ParseLevel(logLevel))
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, net.JoinHostPort(args[0], args[1]), udpPort, os.Stdin, os.Stdout, log)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	return uint16(n), err
}

func run(ctx context.Context, addr string, udpPort uint16, in io.Reader, out io.Writer, log logger.Logger) error {
	client := controlclient.New(controlclient.DefaultConfig(addr))
	defer client.Close()

	client.OnConnectionState(func(ev controlclient.ConnectionStateEvent) {
		log.Debug("connection state", logger.Field{Key: "state", Value: ev.State.String()})
	})
	client.OnError(func(ev controlclient.ErrorEvent) {
		log.Debug("connection error", logger.Field{Key: "error", Value: ev.Error})
	})
	client.OnReply(func(ev controlclient.ReplyEvent) {
		switch ev.Reply.Kind {
		case wire.Announce:
			fmt.Fprintf(out, "New song announced: %s\n> ", ev.Reply.Text)
		case wire.InvalidCommand:
			fmt.Fprintf(out, "INVALID_COMMAND_REPLY: %s\n", ev.Reply.Text)
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}

	count, err := client.Hello(ctx, udpPort)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Welcome to Snowcast! The server has %d stations.\n> ", count)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("server closed the connection")
		case line, ok := <-lines:
			if !ok || line == "q" {
				return nil
			}
			if line == "" {
				fmt.Fprint(out, "> ")
				continue
			}

			station, err := strconv.ParseUint(line, 10, 16)
			if err != nil {
				fmt.Fprintf(out, "enter a station number or q\n> ")
				continue
			}
			if err := client.SetStation(uint16(station)); err != nil {
				return err
			}
		}
	}
}
