package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/conversation"
)

func newChatCommand(settings *config.Settings) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the ticket analysis assistant",
		Long: "Starts an interactive chat session. Type /history to reprint the transcript " +
			"and /quit to leave. Ctrl+C while waiting for an answer cancels that request.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			a.session.Initialize(cmd.Context())

			if strings.TrimSpace(message) != "" {
				turn, ok := submitInterruptible(cmd.Context(), a.session, message)
				if !ok {
					return errors.New("message was not sent")
				}
				_, _ = fmt.Fprintln(out, turn.Content)
				return nil
			}

			for _, t := range a.session.Turns() {
				printTurn(out, t)
			}
			return chatLoop(cmd.Context(), a.session, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message, print the answer and exit")
	return cmd
}

func chatLoop(ctx context.Context, s *conversation.Session, in io.Reader, out io.Writer) error {
	ui := &input.UI{Reader: in, Writer: out}
	for {
		text, err := ui.Ask("\nyou>", &input.Options{HideOrder: true})
		if err != nil {
			if !errors.Is(err, input.ErrInterrupted) {
				log.Debug().Err(err).Msg("chat input closed")
			}
			return nil
		}
		switch strings.TrimSpace(text) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			for _, t := range s.Turns() {
				printTurn(out, t)
			}
			continue
		}

		turn, ok := submitInterruptible(ctx, s, text)
		if !ok {
			continue
		}
		printTurn(out, turn)
	}
}

// submitInterruptible runs Submit with Ctrl+C bound to cancelling the request.
func submitInterruptible(ctx context.Context, s *conversation.Session, text string) (conversation.Turn, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return s.Submit(ctx, text)
}

func printTurn(w io.Writer, t conversation.Turn) {
	who := "assistant"
	if t.Sender == conversation.SenderUser {
		who = "you"
	}
	_, _ = fmt.Fprintf(w, "\n%s> %s\n", who, t.Content)
}
