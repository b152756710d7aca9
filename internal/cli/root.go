// Package cli implements the phiguard command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rbaliyan/phiguard"
)

// Version is set at build time.
var Version = "0.1.0-dev"

type app struct {
	v          *viper.Viper
	configFile string

	cfg     Config
	logger  *zap.Logger
	manager *phiguard.Manager
}

// NewRootCommand builds the phiguard command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:   "phiguard",
		Short: "Field-level protection for medical data at rest",
		Long: `phiguard seals sensitive record fields with a device-held 256-bit key.

The key is created on first use, kept in a secure key store and can be
crypto-shredded with "phiguard wipe", after which everything sealed with it
is permanently unrecoverable.

Commands:
  protect     Seal the string fields of a JSON record
  unprotect   Open the string fields of a sealed JSON record
  digest      Print the SHA-256 digest of a file or text
  verify      Check a file or text against a digest
  wipe        Destroy the data protection key
  status      Show configuration and key state`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: phiguard.yaml in ., $HOME/.phiguard, /etc/phiguard)")
	flags.String("keystore", "", "key store backend (keyring, file, memory)")
	flags.String("dir", "", "directory for file-based key storage")
	flags.String("service", "", "key record service name")
	flags.String("account", "", "key record account name")
	flags.String("algorithm", "", "AEAD algorithm (aes-256-gcm, chacha20-poly1305)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"keystore", "dir", "service", "account", "algorithm"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		a.protectCmd(),
		a.unprotectCmd(),
		a.digestCmd(),
		a.verifyCmd(),
		a.wipeCmd(),
		a.statusCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) init() error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.logger()
	if err != nil {
		return err
	}
	store, err := cfg.keyStore()
	if err != nil {
		return err
	}
	alg, err := phiguard.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return err
	}
	manager, err := phiguard.New(store,
		phiguard.WithKeyRecordID(cfg.recordID()),
		phiguard.WithAlgorithm(alg),
		phiguard.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	a.cfg, a.logger, a.manager = cfg, logger, manager
	return nil
}

// openInput returns the named file, or stdin when no file is given or the name is "-".
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	return f, nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	r, err := openInput(cmd, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
