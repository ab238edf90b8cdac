package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/snowcast/console"
	"github.com/cyberinferno/snowcast/events"
	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/stations"
	"github.com/cyberinferno/snowcast/tcpserver"
)

const serviceName = "snowcast_server"

type options struct {
	bind         string
	maxConns     int
	metricsAddr  string
	redisAddr    string
	redisChannel string
	mqttBroker   string
	mqttTopic    string
	logLevel     string
	logDir       string
	console      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "snowcast_server <tcpport> <file>...",
		Short: "Run the snowcast control server",
		Long: `Run the snowcast control server.

Each file argument is one station; arguments containing glob characters
(e.g. ../mp3/*) are expanded in sorted order.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], args[1:])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.bind, "bind", "127.0.0.1", "address to listen on")
	f.IntVar(&opts.maxConns, "max-conns", tcpserver.DefaultConfig().MaxConnections, "maximum simultaneous control connections")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "publish session events to this Redis server")
	f.StringVar(&opts.redisChannel, "redis-channel", events.DefaultRedisChannel, "Redis pub/sub channel for session events")
	f.StringVar(&opts.mqttBroker, "mqtt-broker", "", "publish session events to this MQTT broker (e.g. tcp://127.0.0.1:1883)")
	f.StringVar(&opts.mqttTopic, "mqtt-topic", events.DefaultMQTTTopicPrefix, "MQTT topic prefix for session events")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to daily files in this directory")
	f.BoolVar(&opts.console, "console", true, "read operator commands (p, q) from stdin")

	return cmd
}

func listenAddr(bind, port string) (string, error) {
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid tcp port %q", port)
	}

	return net.JoinHostPort(bind, strconv.FormatUint(n, 10)), nil
}

func newLogger(opts options) (logger.Logger, error) {
	level := logger.ParseLevel(opts.logLevel)
	if opts.logDir != "" {
		return logger.NewZerologFileLogger(serviceName, opts.logDir, level)
	}

	return logger.NewConsoleLogger(os.Stderr, serviceName, level), nil
}

func run(parent context.Context, opts options, port string, files []string) error {
	if parent == nil {
		parent = context.Background()
	}

	addr, err := listenAddr(opts.bind, port)
	if err != nil {
		return err
	}

	log, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer log.Close()

	registry, err := stations.FromArgs(files)
	if err != nil {
		return err
	}
	for _, i := range registry.Truncated() {
		name, _ := registry.Name(i)
		log.Warn("station name truncated", logger.Field{Key: "station", Value: i}, logger.Field{Key: "name", Value: name})
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	sinks := []events.Sink{events.NewLogSink(log.With(logger.Field{Key: "component", Value: "events"}))}

	if opts.redisAddr != "" {
		client, err := events.NewRedisClient(ctx, opts.redisAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		sink := events.NewRedisSink(client, opts.redisChannel, events.DefaultBuffer, log)
		sinks = append(sinks, sink)
		g.Go(func() error { return sink.Run(ctx) })
	}

	if opts.mqttBroker != "" {
		client, err := events.NewMQTTClient(opts.mqttBroker, fmt.Sprintf("%s-%d", serviceName, os.Getpid()), log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		sink := events.NewMQTTSink(client, opts.mqttTopic, events.DefaultBuffer, log)
		sinks = append(sinks, sink)
		g.Go(func() error { return sink.Run(ctx) })
	}

	serverOpts := []tcpserver.Option{
		tcpserver.WithLogger(log),
		tcpserver.WithSink(events.Multi(sinks...)),
	}

	var reg *prometheus.Registry
	if opts.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serverOpts = append(serverOpts, tcpserver.WithMetrics(reg))
	}

	cfg := tcpserver.DefaultConfig()
	cfg.Addr = addr
	cfg.MaxConnections = opts.maxConns

	srv, err := tcpserver.New(cfg, registry, serverOpts...)
	if err != nil {
		return err
	}

	g.Go(func() error {
		err := srv.Run(ctx)
		// the server is the process; once it stops everything else follows
		stop()
		return err
	})

	if reg != nil {
		g.Go(func() error { return serveMetrics(ctx, opts.metricsAddr, reg, log) })
	}

	if opts.console {
		c := console.New(os.Stdin, os.Stdout, console.ServerSource(srv), srv.Stop, log)
		g.Go(func() error { return c.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", logger.Field{Key: "addr", Value: addr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
