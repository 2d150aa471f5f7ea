// Command dolmetsch translates text with a configured AI provider and
// manages the encrypted provider credentials.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/dolmetsch/pkg/app"
	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/debug"
)

var (
	version = "dev"
	commit  = "none"
)

// cli carries state shared by the subcommands.
type cli struct {
	configPath string
	openOpts   []app.Option
	app        *app.App
}

func (c *cli) open(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Log.Debug, cfg.Log.Level, cfg.Log.Format)

	a, err := app.Open(ctx, cfg, c.openOpts...)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "dolmetsch",
		Short: "Translate text with OpenAI, OpenAI-compatible or Claude backends",
		Long: `dolmetsch translates text with the active provider service.

Provider API keys are stored encrypted. With a master password set, keys can
only be opened by someone who knows it; without one they are merely
obfuscated.

Commands:
  translate        Translate text (argument or stdin)
  service          Manage provider services and their API keys
  master-password  Set or clear the master password
  session          Inspect or reset the Responses conversation state
  settings         Export or import the settings document
  config           Show the effective process configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (default: $DOLMETSCH_CONFIG, ./dolmetsch.yaml, user config dir)")

	root.AddCommand(
		newTranslateCmd(c),
		newServiceCmd(c),
		newMasterPasswordCmd(c),
		newSessionCmd(c),
		newSettingsCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dolmetsch version %s (%s)\n", version, commit)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		slog.Error("dolmetsch failed", "error", err)
		os.Exit(1)
	}
}

// argOrStdin returns args[0], or the whole of stdin when args is empty or
// "-".
func argOrStdin(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// secretArg is argOrStdin for single-line secrets: only the first line of
// stdin is used.
func secretArg(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
