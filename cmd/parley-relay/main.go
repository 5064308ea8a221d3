// Command parley-relay serves the bulletin and the message board to parley
// clients over HTTP or HTTP/3.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TheusHen/parley/internal/config"
	"github.com/TheusHen/parley/parley/transport"
	"github.com/TheusHen/parley/parley/transport/memory"
	"github.com/TheusHen/parley/parley/transport/quic"
	redisboard "github.com/TheusHen/parley/parley/transport/redis"
	"github.com/TheusHen/parley/parley/transport/rest"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		listen, backend, redisAddr string
		http3                      bool
	)
	cmd := &cobra.Command{
		Use:          "parley-relay",
		Short:        "Untrusted store-and-forward relay for parley",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("listen") {
				listen = cfg.Listen
			}
			if !flags.Changed("backend") {
				backend = cfg.Backend
			}
			if !flags.Changed("redis") {
				redisAddr = cfg.RedisAddr
			}
			if !flags.Changed("http3") {
				http3 = cfg.HTTP3
			}
			log := cfg.Logger(os.Stderr).With().Str("component", "relay").Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			board, closeBoard, err := openBackend(ctx, backend, redisAddr, cfg, log)
			if err != nil {
				return err
			}
			defer closeBoard()
			return serve(ctx, listen, http3, rest.NewHandler(board, log), log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default $PARLEY_LISTEN)")
	cmd.Flags().StringVar(&backend, "backend", "", "memory or redis (default $PARLEY_BACKEND)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "redis address (default $PARLEY_REDIS_ADDR)")
	cmd.Flags().BoolVar(&http3, "http3", false, "serve HTTP/3 over QUIC instead of HTTP/1.1")
	return cmd
}

func openBackend(ctx context.Context, backend, addr string, cfg config.Config, log zerolog.Logger) (transport.Transport, func(), error) {
	switch backend {
	case "memory":
		log.Warn().Msg("memory backend: relay state is lost on restart")
		return memory.New(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		log.Info().Str("addr", addr).Str("prefix", cfg.RedisPrefix).Msg("redis backend")
		board := redisboard.New(rdb, redisboard.WithPrefix(cfg.RedisPrefix), redisboard.WithMessageTTL(cfg.MessageTTL))
		return board, func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func serve(ctx context.Context, listen string, http3 bool, h http.Handler, log zerolog.Logger) error {
	errc := make(chan error, 1)
	var shutdown func(context.Context) error
	if http3 {
		cert, err := tlsCertificate()
		if err != nil {
			return err
		}
		srv, err := quic.NewServer(listen, h, cert)
		if err != nil {
			return err
		}
		go func() { errc <- srv.ListenAndServe() }()
		shutdown = func(context.Context) error { return srv.Close() }
	} else {
		srv := &http.Server{Addr: listen, Handler: h, ReadHeaderTimeout: 10 * time.Second}
		go func() { errc <- srv.ListenAndServe() }()
		shutdown = srv.Shutdown
	}
	log.Info().Str("listen", listen).Bool("http3", http3).Msg("relay listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return shutdown(sctx)
}
