package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/lookup"
)

func newSummarizeCommand(settings *config.Settings) *cobra.Command {
	var copyToClipboard bool
	cmd := &cobra.Command{
		Use:   "summarize [identifier]",
		Short: "Look up the summary of a ticket by ID, ticket number or entity key",
		Long: "Looks up one ticket and prints its summary. Without an identifier, prompts " +
			"for one, listing recent searches and examples, and offers to look up another.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				res, err := a.lookup.Fetch(cmd.Context(), args[0])
				if err != nil {
					return errors.Wrap(err, "lookup did not run")
				}
				return printResult(out, res, copyToClipboard)
			}
			return lookupLoop(cmd.Context(), a.lookup, cmd.InOrStdin(), out, copyToClipboard)
		},
	}
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy the summary to the clipboard")
	return cmd
}

func lookupLoop(ctx context.Context, l *lookup.Lookup, in io.Reader, out io.Writer, copyToClipboard bool) error {
	ui := &input.UI{Reader: in, Writer: out}
	for {
		if recent := l.Recent(); len(recent) > 0 {
			_, _ = fmt.Fprintf(out, "Recent: %s\n", strings.Join(recent, ", "))
		}
		_, _ = fmt.Fprintf(out, "Examples: %s\n", strings.Join(l.Examples(), ", "))

		id, err := ui.Ask("Ticket ID, ticket number or entity key", &input.Options{
			Required:  true,
			Loop:      true,
			HideOrder: true,
		})
		if err != nil {
			log.Debug().Err(err).Msg("lookup input closed")
			return nil
		}
		if res, ok := l.Lookup(ctx, id); ok {
			if err := printResult(out, res, copyToClipboard); err != nil {
				return err
			}
		}

		answer, err := ui.Ask("\nLook up another ticket? [y/n]", &input.Options{
			Default:  "y",
			Required: true,
			Loop:     true,
			ValidateFunc: func(answer string) error {
				switch answer {
				case "y", "Y", "n", "N":
					return nil
				default:
					return errors.Errorf("please enter 'y' or 'n'")
				}
			},
		})
		if err != nil || strings.EqualFold(answer, "n") {
			return nil
		}
	}
}

func printResult(w io.Writer, res lookup.Result, copyToClipboard bool) error {
	_, _ = fmt.Fprintln(w, res.Text())
	s, ok := res.Outcome.(lookup.Success)
	if !ok || !copyToClipboard {
		return nil
	}
	if err := clipboard.WriteAll(s.Summary); err != nil {
		return errors.Wrap(err, "copy summary to clipboard")
	}
	_, _ = fmt.Fprintln(w, "(summary copied to clipboard)")
	return nil
}
