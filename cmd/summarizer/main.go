package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
)

var version = "dev"

type rootFlags struct {
	LogLevel   string
	WithCaller bool
	ConfigPath string
	BaseURL    string
	SessionKey string
	Store      string
	StorePath  string
	Timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	settings := &config.Settings{}

	root := &cobra.Command{
		Use:           "summarizer",
		Short:         "Chat with the ticket analysis backend and look up ticket summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(cmd.ErrOrStderr(), flags.LogLevel, flags.WithCaller); err != nil {
				return err
			}
			s, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, flags, &s)
			if err := s.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			*settings = s
			log.Debug().Str("base_url", s.BaseURL).Str("store", s.Store.Kind).Msg("configuration loaded")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.LogLevel, "log-level", "warn", "Global log level (trace, debug, info, warn, error)")
	pf.BoolVar(&flags.WithCaller, "with-caller", false, "Include caller (file:line) in logs")
	pf.StringVar(&flags.ConfigPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	pf.StringVar(&flags.BaseURL, "base-url", "", "Backend base URL")
	pf.StringVar(&flags.SessionKey, "session-key", "", "Chat session key sent with every message")
	pf.StringVar(&flags.Store, "store", "", "Recent search store: sqlite, redis or memory")
	pf.StringVar(&flags.StorePath, "store-path", "", "SQLite file for the recent search store")
	pf.DurationVar(&flags.Timeout, "timeout", 0, "Backend request timeout")

	root.AddCommand(
		newChatCommand(settings),
		newSummarizeCommand(settings),
		newRecentCommand(settings),
		newExamplesCommand(settings),
		newServeCommand(settings),
		newConfigCommand(settings),
		newVersionCommand(),
	)
	return root
}

func applyFlags(cmd *cobra.Command, f *rootFlags, s *config.Settings) {
	changed := cmd.Flags().Changed
	if changed("base-url") {
		s.BaseURL = f.BaseURL
	}
	if changed("session-key") {
		s.SessionKey = f.SessionKey
	}
	if changed("store") {
		s.Store.Kind = f.Store
	}
	if changed("store-path") {
		s.Store.Path = f.StorePath
	}
	if changed("timeout") {
		s.RequestTimeout = f.Timeout
	}
}

func initLogger(w io.Writer, level string, withCaller bool) error {
	lvl := zerolog.WarnLevel
	if level != "" {
		l, err := zerolog.ParseLevel(level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		lvl = l
	}
	zerolog.SetGlobalLevel(lvl)

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	ctx := zerolog.New(w).With().Timestamp()
	if withCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("summarizer failed")
		os.Exit(1)
	}
}
