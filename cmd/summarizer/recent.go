package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
)

func newRecentCommand(settings *config.Settings) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently looked up identifiers, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			if clearAll {
				if err := a.recent.Clear(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, "recent searches cleared")
				return nil
			}
			for _, id := range a.recent.Entries() {
				_, _ = fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Forget all recent searches")
	return cmd
}

func newExamplesCommand(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List example identifiers, one per accepted form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for _, id := range a.lookup.Examples() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
