// Command coremq-broker runs the Client & Session Coordination Core behind
// a TCP and WebSocket listener, with Prometheus metrics and flag/env
// configuration via cobra/viper (no configuration file is read), replacing the teacher's bare-flag
// gomqtt-membroker (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/qingcloudhx/mqttcore/coreengine"
	"github.com/qingcloudhx/mqttcore/transport"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "coremq-broker",
		Short: "Runs the MQTT client and session coordination core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("tcp-addr", ":1883", "TCP listen address")
	flags.String("ws-addr", ":8083", "WebSocket listen address")
	flags.String("admin-addr", ":9090", "Prometheus /metrics listen address")
	flags.String("client-id", "coremq-broker", "sender client_id attributed to server-originated publishes")
	flags.Duration("default-communication-timeout", coreengine.DefaultCommunicationTimeout, "packet read/send/disconnect timeout")
	flags.Bool("enable-persistent-sessions", false, "keep a client's session alive across a non-takeover disconnect")
	flags.Int("session-queue-size", 0, "per-session outbound queue capacity (0 uses the session package default)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("coremq")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	log := logrus.StandardLogger()

	reg := prometheus.NewRegistry()
	engine := coreengine.New(coreengine.Options{
		ClientID:                    v.GetString("client-id"),
		DefaultCommunicationTimeout: v.GetDuration("default-communication-timeout"),
		EnablePersistentSessions:    v.GetBool("enable-persistent-sessions"),
		SessionQueueSize:            v.GetInt("session-queue-size"),
		MetricsRegisterer:           reg,
		Logger:                      log,
	})
	engine.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcpListener, err := net.Listen("tcp", v.GetString("tcp-addr"))
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveTCP(gctx, log, engine, tcpListener)
	})

	g.Go(func() error {
		return serveWebSocket(gctx, log, engine, v.GetString("ws-addr"))
	})

	g.Go(func() error {
		return serveAdmin(gctx, v.GetString("admin-addr"), reg)
	})

	g.Go(func() error {
		<-gctx.Done()
		_ = tcpListener.Close()
		return engine.Stop()
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}

	return nil
}

// serveTCP accepts connections on ln and hands each one to the
// coordination core's Connect Handshake (C3) on its own goroutine.
func serveTCP(ctx context.Context, log *logrus.Logger, engine *coreengine.Engine, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("tcp accept failed")
			continue
		}

		adapter := transport.NewTCPAdapter(conn, transport.DefaultReadRate)
		go engine.HandleClientConnection(ctx, adapter)
	}
}

// serveWebSocket accepts MQTT-over-WebSocket attachments on addr and hands
// each one to the coordination core's Connect Handshake (C3), mirroring
// serveTCP but over a gorilla/websocket upgrade.
func serveWebSocket(ctx context.Context, log *logrus.Logger, engine *coreengine.Engine, addr string) error {
	upgrader := websocket.Upgrader{
		Subprotocols:    []string{"mqtt"},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mqtt", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		adapter := transport.NewWebSocketAdapter(conn)
		go engine.HandleClientConnection(ctx, adapter)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// serveAdmin exposes the engine's Prometheus collectors and shuts down
// cleanly when ctx is done.
func serveAdmin(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
