package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMasterPasswordCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master-password",
		Short: "Set or clear the master password",
		Long: `The master password protects every stored API key. Changing it re-encrypts
all keys in one atomic write; if any key cannot be opened, nothing changes.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [password|-]",
		Short: "Set a new master password (read from stdin if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := secretArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if pw == "" {
				return fmt.Errorf("empty master password; use \"master-password clear\" to remove it")
			}
			return c.app.Settings.ChangeMasterPassword(cmd.Context(), pw)
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Remove the master password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Settings.ClearMasterPassword(cmd.Context())
		},
	})
	return cmd
}
