package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	sparkle "github.com/sparkle/client-go"
	"github.com/sparkle/client-go/store/memstore"
)

func newKeygenCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new identity and seal it into the identity file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Identity.File
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", path)
			}

			// Generation needs no backend.
			client, err := sparkle.New(memstore.New(), sparkle.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.CreateIdentity(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.ExportIdentityToFile(id, path, a.cfg.Identity.Passphrase); err != nil {
				return err
			}
			a.logger.Info().Str("file", path).Msg("identity written")
			fmt.Fprintln(a.out, id.Identifier())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing identity file.")
	return cmd
}

func newIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the identifier of the identity file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sparkle.New(memstore.New())
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.ImportIdentityFromFile(a.cfg.Identity.File, a.cfg.Identity.Passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id.Identifier())
			return nil
		},
	}
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish the public key so peers can send to this identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, closeFn, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := id.Publish(cmd.Context()); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(a.out, "published %s\n", id.Identifier())
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer-id> <text...>",
		Short: "Encrypt a message for a peer and push it to the store",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID := args[0]
			if err := sparkle.ValidateIdentifier(peerID); err != nil {
				return errors.New(invalidIDMessage)
			}
			text := strings.Join(args[1:], " ")

			_, id, closeFn, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			msg, err := id.SendTo(cmd.Context(), peerID, text)
			if err != nil {
				if errors.Is(err, sparkle.ErrPeerNotFound) {
					return fmt.Errorf("no key published for %s", peerID)
				}
				return err
			}
			a.logger.Debug().Str("key", msg.ID).Msg("sent")
			color.New(color.FgGreen).Fprintf(a.out, "sent to %s\n", peerID)
			return nil
		},
	}
}

func newListenCmd(a *app) *cobra.Command {
	var (
		from  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Publish the identity and print messages addressed to it",
		Long: `Listen publishes the identity, prints the messages already waiting
for it and then every new one until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from != "" {
				if err := sparkle.ValidateIdentifier(from); err != nil {
					return errors.New(invalidIDMessage)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, id, closeFn, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return a.listen(ctx, id, from, count)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Only print messages from this identifier.")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many messages; 0 waits until interrupted.")
	return cmd
}

// listen publishes id and prints its messages until ctx ends or count
// messages were printed.
func (a *app) listen(ctx context.Context, id *sparkle.Identity, from string, count int) error {
	// Watch first: Publish replays waiting messages as soon as it listens.
	messages := id.Watch(ctx)
	if err := id.Publish(ctx); err != nil {
		return err
	}
	a.logger.Info().Str("identifier", id.Identifier()).Msg("listening")

	sender := color.New(color.FgCyan, color.Bold).SprintFunc()
	printed := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case m := <-messages:
			if m == nil || (from != "" && m.From != from) {
				continue
			}
			fmt.Fprintf(a.out, "%s %s: %s\n", time.Now().Format(time.Kitchen), sender(shortID(m.From)), m.Text)
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
