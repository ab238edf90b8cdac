package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/snowcast/listener"
	"github.com/cyberinferno/snowcast/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:           "snowcast_listener <udpport>",
		Short:         "Write the audio stream received on a UDP port to stdout",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid udp port %q", args[0])
			}

			log := logger.NewConsoleLogger(os.Stderr, "snowcast_listener", logger.ParseLevel("info"))
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(bind, strconv.FormatUint(port, 10))
			log.Info("listening for datagrams", logger.Field{Key: "addr", Value: addr})
			return listener.Listen(ctx, addr, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "local address to bind (default all interfaces)")
	return cmd
}
