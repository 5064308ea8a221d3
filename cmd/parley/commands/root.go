// Package commands implements the parley CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TheusHen/parley/internal/config"
	"github.com/TheusHen/parley/internal/keyring"
	"github.com/TheusHen/parley/parley/client"
	"github.com/TheusHen/parley/parley/store"
	"github.com/TheusHen/parley/parley/transport"
	"github.com/TheusHen/parley/parley/transport/quic"
	"github.com/TheusHen/parley/parley/transport/rest"
)

var (
	cfg        config.Config
	log        zerolog.Logger
	home       string
	passphrase string
	relayURL   string
	http3      bool

	cl      *client.Client
	closers []func() error
)

func Execute() error {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "End-to-end encrypted messaging over an untrusted relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if home == "" {
				home = cfg.Home
			}
			if relayURL == "" {
				relayURL = cfg.RelayURL
			}
			if !cmd.Flags().Changed("http3") {
				http3 = cfg.HTTP3
			}
			if passphrase == "" {
				passphrase = os.Getenv("PARLEY_PASSPHRASE")
			}
			log = cfg.Logger(os.Stderr)
			return os.MkdirAll(home, 0o700)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range closers {
				c()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default $PARLEY_HOME or ~/.parley)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "keyring passphrase (default $PARLEY_PASSPHRASE)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (default $PARLEY_RELAY_URL)")
	root.PersistentFlags().BoolVar(&http3, "http3", false, "reach the relay over HTTP/3")

	root.AddCommand(
		initCmd(), whoamiCmd(),
		announceCmd(), syncCmd(), acceptCmd(),
		sendCmd(), recvCmd(), statusCmd(),
		peersCmd(), discardCmd(), refreshCmd(),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func relay() transport.Transport {
	if http3 {
		c := quic.NewClient(relayURL, quic.ClientTLSConfig(cfg.Insecure))
		closers = append(closers, c.Close)
		return c
	}
	return rest.New(relayURL, nil)
}

// openClient loads the keyring and the saved client state.
func openClient(ctx context.Context) (*client.Client, error) {
	if cl != nil {
		return cl, nil
	}
	kr, err := keyring.Load(home, passphrase)
	if err != nil {
		return nil, err
	}
	st, err := store.NewFile(filepath.Join(home, "state"), store.WithFileLogger(log))
	if err != nil {
		return nil, err
	}
	cl, err = client.Open(ctx, kr.Keys, relay(), st, kr.BlobKey, client.DefaultConfig(), client.WithLogger(log))
	return cl, err
}

func withClient(fn func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd, c, args)
	}
}

func printf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
