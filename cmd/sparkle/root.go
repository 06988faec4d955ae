package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sparkle "github.com/sparkle/client-go"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	configFile string
	cfg        *Config
	logger     zerolog.Logger
	out        io.Writer
}

// invalidIDMessage is printed for a malformed peer identifier.
const invalidIDMessage = "Invalid Sparkle ID!"

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "sparkle",
		Short: "End-to-end encrypted messages over a shared realtime store",
		Long: `Sparkle exchanges encrypted text messages through a shared store.

Each identity is an RSA key pair kept in a passphrase-sealed file. Its
identifier is the SHA-256 of the public key and is what peers send to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setFlagsFromEnv(envPrefix, cmd.Root().PersistentFlags())
			cfg, err := loadConfig(a.configFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(errOut, cfg.LogLevel)
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Config file (default ./sparkle.yaml or ~/.config/sparkle/sparkle.yaml).")
	pf.String("backend", "memory", "Store backend: memory, redis, etcd or rtdb.")
	pf.StringP("identity", "i", "sparkle.identity", "Sealed identity file.")
	pf.String("passphrase", "", "Passphrase for the identity file.")
	pf.Duration("timeout", 0, "Timeout for store operations.")
	pf.String("log-level", "info", "Log level: trace, debug, info, warn, error or disabled.")

	root.AddCommand(
		newKeygenCmd(a),
		newIDCmd(a),
		newPublishCmd(a),
		newSendCmd(a),
		newListenCmd(a),
	)
	return root
}

// session opens the store, builds a client and loads the identity file.
// The returned close function releases both.
func (a *app) session(ctx context.Context) (*sparkle.Client, *sparkle.Identity, func(), error) {
	st, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	client, err := sparkle.New(st,
		sparkle.WithLogger(a.logger),
		sparkle.WithTimeout(a.cfg.Timeout),
		sparkle.WithErrorHandler(func(err error) {
			a.logger.Error().Err(err).Msg("delivery failed")
		}),
	)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close client")
		}
	}

	id, err := client.ImportIdentityFromFile(a.cfg.Identity.File, a.cfg.Identity.Passphrase)
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("load identity %s: %w", a.cfg.Identity.File, err)
	}
	return client, id, closeFn, nil
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintln(w, err)
}
