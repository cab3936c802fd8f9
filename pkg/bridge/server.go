// Package bridge exposes the chat session and the summary lookup to a browser
// presentation layer: JSON endpoints for reads and actions, plus a websocket
// stream of state change events.
package bridge

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EventSource yields the serialized events to forward to websocket clients.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

type Server struct {
	chat     ChatSession
	lookup   SummaryLookup
	source   EventSource
	pool     *ConnectionPool
	httpSrv  *http.Server
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	signals  bool
}

type ServerOption func(*Server) error

func WithEventSource(src EventSource) ServerOption {
	return func(s *Server) error {
		s.source = src
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithSignalHandling makes Run shut down on SIGINT/SIGTERM.
func WithSignalHandling(enabled bool) ServerOption {
	return func(s *Server) error {
		s.signals = enabled
		return nil
	}
}

// WithCheckOrigin overrides the websocket origin check, which defaults to
// same-origin.
func WithCheckOrigin(f func(*http.Request) bool) ServerOption {
	return func(s *Server) error {
		s.upgrader.CheckOrigin = f
		return nil
	}
}

func NewServer(addr string, chat ChatSession, summaries SummaryLookup, options ...ServerOption) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat session is nil")
	}
	if summaries == nil {
		return nil, errors.New("summary lookup is nil")
	}
	s := &Server{
		chat:   chat,
		lookup: summaries,
		logger: log.Logger,
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With().Str("component", "bridge").Logger()
	s.pool = NewConnectionPool(s.logger)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/api/chat/turns", newChatTurnsHandler(s.chat, s.logger))
	mux.HandleFunc("/api/chat", newChatSubmitHandler(s.chat, s.logger))
	mux.HandleFunc("/api/chat/cancel", newCancelHandler(s.chat.Cancel))
	mux.HandleFunc("/api/lookup", newLookupHandler(s.lookup, s.logger))
	mux.HandleFunc("/api/lookup/cancel", newCancelHandler(s.lookup.Cancel))
	mux.HandleFunc("/api/lookup/recent", newRecentHandler(s.lookup, s.logger))
	mux.HandleFunc("/ws", newWSHandler(s.chat, s.lookup, s.pool, s.upgrader, s.logger))
	return mux
}

func (s *Server) Pool() *ConnectionPool { return s.pool }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Run serves HTTP and forwards events to websocket clients until ctx is done
// (or a signal arrives, with WithSignalHandling), then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.httpSrv.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)
	srvCtx, srvCancel := context.WithCancel(egCtx)
	defer srvCancel()

	if s.source != nil {
		msgs, err := s.source.Subscribe(srvCtx)
		if err != nil {
			_ = ln.Close()
			return errors.Wrap(err, "subscribe to events")
		}
		eg.Go(func() error {
			s.forward(srvCtx, msgs)
			return nil
		})
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		if s.signals {
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
		}
		select {
		case <-sigChan:
			s.logger.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		s.pool.CloseAll()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.logger.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("starting state bridge")
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) forward(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			s.pool.Broadcast(msg.Payload)
			msg.Ack()
		}
	}
}
