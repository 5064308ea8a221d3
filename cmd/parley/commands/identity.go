package commands

import (
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/TheusHen/parley/internal/keyring"
	"github.com/TheusHen/parley/parley/client"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate an identity and protect it with a passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, err := keyring.Create(home, passphrase)
			if err != nil {
				return err
			}
			printf(cmd, "Identity created.\nUser ID:     %s\nPublic keys: %s\n", kr.Keys.ID(), hex.EncodeToString(kr.Keys.Public().Bytes()))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the user id and the public keys to share",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			printf(cmd, "User ID:     %s\nPublic keys: %s\n", c.ID(), hex.EncodeToString(c.PublicKeys().Bytes()))
			return nil
		}),
	}
}
