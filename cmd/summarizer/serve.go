package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/bridge"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
)

func newServeCommand(settings *config.Settings) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat session and lookup state to a browser over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *settings
			if cmd.Flags().Changed("addr") {
				s.Bridge.Addr = addr
			}
			a, err := newApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			a.session.Initialize(cmd.Context())
			srv, err := bridge.NewServer(s.Bridge.Addr, a.session, a.lookup,
				bridge.WithLogger(log.Logger),
				bridge.WithEventSource(a.pubsub),
				bridge.WithSignalHandling(true),
			)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultBridge, "Listen address")
	return cmd
}
