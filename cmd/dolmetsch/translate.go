package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/dolmetsch/pkg/translate"
)

func newTranslateCmd(c *cli) *cobra.Command {
	var (
		lang       string
		service    string
		stream     bool
		noStream   bool
		showTokens bool
	)

	cmd := &cobra.Command{
		Use:   "translate [text|-]",
		Short: "Translate text",
		Long: `Translate text with the active service. Without an argument, or with "-",
the text is read from stdin. Streamed output is written as it arrives.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := argOrStdin(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("nothing to translate")
			}

			opts := translate.Options{TargetLanguage: lang, ServiceID: service}
			if cmd.Flags().Changed("stream") {
				opts.Stream = &stream
			}
			if noStream {
				off := false
				opts.Stream = &off
			}

			out := cmd.OutOrStdout()
			res, err := c.app.Client.Stream(cmd.Context(), text, opts, func(s string) error {
				_, err := io.WriteString(out, s)
				return err
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if showTokens {
				fmt.Fprintf(cmd.ErrOrStderr(), "~%d input tokens, %d attempt(s), protocol %s\n",
					translate.EstimateTokens(text), res.Attempts, res.Protocol)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language (default: from settings)")
	cmd.Flags().StringVar(&service, "service", "", "Service id to use instead of the active one")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream the translation")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the complete translation")
	cmd.Flags().BoolVar(&showTokens, "tokens", false, "Print an input token estimate to stderr")
	cmd.MarkFlagsMutuallyExclusive("stream", "no-stream")
	return cmd
}
