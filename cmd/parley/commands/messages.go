package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheusHen/parley/parley/client"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/message"
	"github.com/TheusHen/parley/parley/seeker"
)

func sendCmd() *cobra.Command {
	var replyTo, quote string
	var forward bool
	cmd := &cobra.Command{
		Use:   "send <user-id> <text>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			peer, err := identity.ParseUserIDHex(args[0])
			if err != nil {
				return err
			}
			msg := message.Regular(args[1])
			if replyTo != "" {
				ref, err := seeker.ParseHex(replyTo)
				if err != nil {
					return fmt.Errorf("--reply-to: %w", err)
				}
				if forward {
					msg = message.Forward(quote, ref, args[1])
				} else {
					msg = message.Reply(quote, ref, args[1])
				}
			}
			id, err := c.Send(cmd.Context(), peer, msg)
			if id != 0 {
				printf(cmd, "message %d: %s\n", id, c.Status(id))
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "seeker of the message being answered or forwarded")
	cmd.Flags().StringVar(&quote, "quote", "", "content of the referenced message")
	cmd.Flags().BoolVar(&forward, "forward", false, "forward the referenced message with <text> as note")
	return cmd
}

func recvCmd() *cobra.Command {
	var follow time.Duration
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt new messages",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			for {
				if _, err := c.SyncAnnouncements(cmd.Context()); err != nil {
					return err
				}
				msgs, err := c.Poll(cmd.Context())
				for _, m := range msgs {
					printf(cmd, "[%s] %s #%d %s: %s\n  seeker %s\n", m.Timestamp.Format(time.Kitchen), m.PeerID.Short(), m.Sequence, m.Message.Type, render(m.Message), m.Seeker)
					if len(m.AcknowledgedSeekers) > 0 {
						log.Debug().Int("acked", len(m.AcknowledgedSeekers)).Msg("peer acknowledged messages")
					}
				}
				if err != nil || follow <= 0 {
					return err
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(follow):
				}
			}
		}),
	}
	cmd.Flags().DurationVarP(&follow, "follow", "f", 0, "keep polling at this interval")
	return cmd
}

func render(m message.Message) string {
	if m.Ref == nil {
		return m.Content
	}
	return fmt.Sprintf("%s (re %s: %q)", m.Content, m.Ref.Seeker.String()[:12], m.Ref.Content)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <message-id>",
		Short: "Show the delivery status of a sent message",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", c.Status(id))
			return nil
		}),
	}
}
