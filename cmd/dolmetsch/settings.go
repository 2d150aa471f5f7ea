package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/dolmetsch/pkg/settings"
)

func newSettingsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Export or import the settings document",
	}
	cmd.AddCommand(newSettingsExportCmd(c), newSettingsImportCmd(c))
	return cmd
}

func newSettingsExportCmd(c *cli) *cobra.Command {
	var (
		format string
		safe   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export settings with their key material",
		Long: `Export the settings document. The export contains the encrypted API keys and
the key material to open them, so it must be kept as private as the store
itself. With --safe all API keys are left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := settings.Format(format)
			if f != settings.FormatJSON && f != settings.FormatYAML {
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
			data, err := c.app.Settings.Export(cmd.Context(), settings.ExportOptions{Safe: safe, Format: f})
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o600)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(settings.FormatJSON), "Output format: json or yaml")
	cmd.Flags().BoolVar(&safe, "safe", false, "Leave out all API keys")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newSettingsImportCmd(c *cli) *cobra.Command {
	var masterPassword string

	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Import an export (json or yaml)",
		Long: `Import an export produced by "settings export". When the export carries a
master password, every API key is opened with it before anything is written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading export: %w", err)
			}
			return c.app.Settings.Import(cmd.Context(), data, masterPassword)
		},
	}

	cmd.Flags().StringVar(&masterPassword, "master-password", "", "Master password the export was protected with")
	return cmd
}
