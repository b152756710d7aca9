package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbaliyan/phiguard"
)

func (a *app) protectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protect [file]",
		Short: "Seal the string fields of a JSON record",
		Long: `Reads a JSON object from file (or stdin) and writes the same object with
every string value replaced by its sealed base64 token. Numbers, booleans,
nulls and nested values pass through unchanged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(cmd, args)
			if err != nil {
				return err
			}
			out, err := a.manager.Protect(commandContext(cmd), rec)
			if err != nil {
				return err
			}
			return writeRecord(cmd, out)
		},
	}
}

func (a *app) unprotectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unprotect [file]",
		Short: "Open the string fields of a sealed JSON record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(cmd, args)
			if err != nil {
				return err
			}
			out, err := a.manager.Unprotect(commandContext(cmd), rec)
			if err != nil {
				return err
			}
			return writeRecord(cmd, out)
		},
	}
}

func (a *app) digestCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "digest [file]",
		Short: "Print the SHA-256 digest of a file or text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var digest string
			if cmd.Flags().Changed("text") {
				digest = phiguard.DigestString(text)
			} else {
				data, err := readInput(cmd, args)
				if err != nil {
					return err
				}
				digest = phiguard.Digest(data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "digest this text instead of a file")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var (
		expected string
		text     string
	)
	cmd := &cobra.Command{
		Use:   "verify --digest <hex> [file]",
		Short: "Check a file or text against a SHA-256 digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if cmd.Flags().Changed("text") {
				data = []byte(text)
			} else {
				var err error
				if data, err = readInput(cmd, args); err != nil {
					return err
				}
			}
			if !phiguard.Verify(data, strings.TrimSpace(expected)) {
				return errors.New("digest mismatch")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&expected, "digest", "", "expected lowercase hex SHA-256 digest")
	cmd.Flags().StringVar(&text, "text", "", "verify this text instead of a file")
	_ = cmd.MarkFlagRequired("digest")
	return cmd
}

func (a *app) wipeCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Destroy the data protection key",
		Long: `Deletes the data protection key from the key store. Every value sealed
with it becomes permanently unrecoverable. The next protect generates a new,
unrelated key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to wipe the key without --yes")
			}
			if err := a.manager.Wipe(commandContext(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "key wiped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm permanent destruction of the key")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and key state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "keystore:      %s\n", a.cfg.KeyStore)
			fmt.Fprintf(w, "record:        %s\n", a.cfg.recordID())
			fmt.Fprintf(w, "algorithm:     %s\n", a.manager.Algorithm())
			fmt.Fprintf(w, "state:         %s\n", a.manager.State())
			fmt.Fprintf(w, "device secure: %t\n", a.manager.IsDeviceSecure(commandContext(cmd)))
			return nil
		},
	}
}

func readRecord(cmd *cobra.Command, args []string) (phiguard.Record, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	var rec phiguard.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}
	if rec == nil {
		rec = phiguard.Record{}
	}
	return rec, nil
}

func writeRecord(cmd *cobra.Command, rec phiguard.Record) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
