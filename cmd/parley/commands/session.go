package commands

import (
	"encoding/hex"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheusHen/parley/parley/client"
	"github.com/TheusHen/parley/parley/identity"
)

func announceCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "announce <public-keys-hex>",
		Short: "Ask a peer for a session",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("public keys: %w", err)
			}
			peer, err := identity.ParsePublicKeys(raw)
			if err != nil {
				return err
			}
			if err := c.Announce(cmd.Context(), peer, []byte(note)); err != nil {
				return err
			}
			printf(cmd, "announced to %s (%s)\n", peer.ID().Short(), c.Sessions().PeerSessionStatus(peer.ID()))
			return nil
		}),
	}
	cmd.Flags().StringVar(&note, "note", "", "text shown to the peer with the request")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Read new announcements from the relay",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			res, err := c.SyncAnnouncements(cmd.Context())
			for _, r := range res {
				printf(cmd, "%s  %s  %s  %q\n", r.Timestamp.Format(time.RFC3339), r.PeerID, r.Status, r.UserData)
			}
			return err
		}),
	}
}

func acceptCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "accept <user-id>",
		Short: "Accept a session request",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			peer, err := identity.ParseUserIDHex(args[0])
			if err != nil {
				return err
			}
			if err := c.Accept(cmd.Context(), peer, []byte(note)); err != nil {
				return err
			}
			printf(cmd, "%s: %s\n", peer.Short(), c.Sessions().PeerSessionStatus(peer))
			return nil
		}),
	}
	cmd.Flags().StringVar(&note, "note", "", "text shown to the peer with the answer")
	return cmd
}

func peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PEER\tSTATUS\tUNACKED\tQUEUED\tLAST RECEIVED")
			for _, p := range c.Sessions().Peers() {
				last := "-"
				if !p.LastReceived.IsZero() {
					last = p.LastReceived.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Status, p.Unacked, c.Queued(p.ID), last)
			}
			return w.Flush()
		}),
	}
}

func discardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <user-id>",
		Short: "Drop the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			peer, err := identity.ParseUserIDHex(args[0])
			if err != nil {
				return err
			}
			if err := c.Discard(cmd.Context(), peer); err != nil {
				return err
			}
			printf(cmd, "%s: %s\n", peer.Short(), c.Sessions().PeerSessionStatus(peer))
			return nil
		}),
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Send keep-alives and expire idle sessions",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			if err := c.ResendAnnouncements(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("announcements still queued")
			}
			peers, err := c.Refresh(cmd.Context())
			printf(cmd, "keep-alive queued for %d peer(s)\n", len(peers))
			return err
		}),
	}
}
