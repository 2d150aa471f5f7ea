package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/settings"
)

func newServiceCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage provider services",
	}
	cmd.AddCommand(
		newServiceListCmd(c),
		newServiceUseCmd(c),
		newServiceAddCmd(c),
		newServiceRemoveCmd(c),
		newServiceSetKeyCmd(c),
	)
	return cmd
}

func newServiceListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List services; the active one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.app.Settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			active := doc.ActiveService().ID

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tKIND\tBASE URL\tMODEL\tKEY")
			for _, s := range doc.Services {
				mark, key := "", "-"
				if s.ID == active {
					mark = "*"
				}
				if s.APIKeyEnc != "" {
					key = "set"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", mark, s.ID, s.Name, s.Kind, s.BaseURL, s.Model, key)
			}
			return tw.Flush()
		},
	}
}

func newServiceUseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a service the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Settings.SetActiveService(cmd.Context(), args[0])
		},
	}
}

func newServiceAddCmd(c *cli) *cobra.Command {
	var (
		id          string
		name        string
		kind        string
		baseURL     string
		model       string
		temperature float64
		maxTokens   int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a service",
		Long: `Add a service, or replace the service with the given --id.

Kinds: openai-responses (default), openai-chat, claude.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := provider.ParseKind(kind)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, err := c.app.Settings.Load(ctx)
			if err != nil {
				return err
			}

			p := settings.Profile{ID: id, Name: name, Kind: k, BaseURL: baseURL, Model: model, Temperature: temperature}
			if old, ok := doc.Service(id); ok {
				p.APIKeyEnc = old.APIKeyEnc
			}
			if maxTokens > 0 {
				p.MaxTokens = &maxTokens
			}
			newID := doc.UpsertService(p)
			if err := c.app.Settings.Save(ctx, doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), newID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Service id (default: next free svc-N)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&kind, "kind", string(provider.KindResponses), "Protocol: openai-responses, openai-chat or claude")
	cmd.Flags().StringVar(&baseURL, "base-url", settings.DefaultBaseURL, "API base URL")
	cmd.Flags().StringVar(&model, "model", settings.DefaultModel, "Model name")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum output tokens (0 = provider default)")

	_ = cmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var kinds []string
		for _, k := range provider.Kinds() {
			kinds = append(kinds, string(k))
		}
		return kinds, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newServiceRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a service and its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := c.app.Settings.Load(ctx)
			if err != nil {
				return err
			}
			if err := doc.RemoveService(args[0]); err != nil {
				return err
			}
			if err := c.app.Settings.SetAPIKey(ctx, args[0], ""); err != nil {
				return err
			}
			// SetAPIKey saved the old document; load the key-less copy again.
			cleared, err := c.app.Settings.Load(ctx)
			if err != nil {
				return err
			}
			if err := cleared.RemoveService(args[0]); err != nil {
				return err
			}
			return c.app.Settings.Save(ctx, cleared)
		},
	}
}

func newServiceSetKeyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <id> [key|-]",
		Short: "Store the API key of a service",
		Long: `Encrypt and store the API key of a service. Without a key argument, or with
"-", the key is read from the first line of stdin. An empty key removes it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretArg(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			return c.app.Settings.SetAPIKey(cmd.Context(), args[0], key)
		},
	}
}
