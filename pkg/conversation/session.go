// Package conversation holds the chat transcript of one session and drives the
// send/receive cycle against the backend /chat endpoint.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
)

// DefaultTimeout bounds a single chat request.
const DefaultTimeout = 30 * time.Second

// ChatClient is the part of backend.Client the session needs.
type ChatClient interface {
	Chat(ctx context.Context, in backend.ChatRequest) (*backend.ChatResponse, error)
	BaseURL() string
}

// Session is the transcript of one conversation plus the single in-flight
// request, if any. It is safe for concurrent use.
type Session struct {
	client     ChatClient
	sessionKey string
	welcome    string
	timeout    time.Duration
	logger     zerolog.Logger
	sink       events.Sink
	now        func() time.Time
	newID      func() string

	mu        sync.Mutex
	turns     []Turn
	state     State
	pendingID string
	cancel    context.CancelFunc
}

type SessionOption func(*Session) error

// WithWelcome replaces WelcomeMessage as the seeded first turn.
func WithWelcome(text string) SessionOption {
	return func(s *Session) error {
		if strings.TrimSpace(text) == "" {
			return errors.New("welcome text is empty")
		}
		s.welcome = text
		return nil
	}
}

// WithTimeout bounds each chat request. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) error {
		if d <= 0 {
			return errors.Errorf("invalid timeout %s", d)
		}
		s.timeout = d
		return nil
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) error {
		s.logger = logger
		return nil
	}
}

// WithSink sets where turn events go. A nil sink drops them.
func WithSink(sink events.Sink) SessionOption {
	return func(s *Session) error {
		if sink == nil {
			sink = events.NopSink{}
		}
		s.sink = sink
		return nil
	}
}

// WithClock sets the source of turn timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.now = now
		return nil
	}
}

// WithIDGenerator sets the source of turn IDs, UUIDv7 by default.
func WithIDGenerator(gen func() string) SessionOption {
	return func(s *Session) error {
		if gen == nil {
			return errors.New("id generator is nil")
		}
		s.newID = gen
		return nil
	}
}

// NewSession creates an empty session bound to sessionKey. An empty key gets a
// random one, which is then fixed for the lifetime of the session.
func NewSession(client ChatClient, sessionKey string, options ...SessionOption) (*Session, error) {
	if client == nil {
		return nil, errors.New("chat client is nil")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		sessionKey = uuid.NewString()
	}
	s := &Session{
		client:     client,
		sessionKey: sessionKey,
		welcome:    WelcomeMessage,
		timeout:    DefaultTimeout,
		logger:     log.Logger,
		sink:       events.NopSink{},
		now:        time.Now,
		newID:      newTurnID,
		state:      StateIdle,
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With().
		Str("component", "conversation").
		Str("session_key", s.sessionKey).
		Logger()
	return s, nil
}

func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Session) SessionKey() string { return s.sessionKey }

// Initialize seeds the welcome turn on an empty transcript. It is a no-op once
// the transcript has any turn.
func (s *Session) Initialize(ctx context.Context) {
	s.mu.Lock()
	if len(s.turns) > 0 {
		s.mu.Unlock()
		return
	}
	t := Turn{
		ID:        s.newID(),
		Content:   s.welcome,
		Sender:    SenderAssistant,
		CreatedAt: s.now(),
	}
	s.turns = append(s.turns, t)
	s.mu.Unlock()

	s.emit(ctx, events.TypeTurnAppended, t)
}

func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingID != ""
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turns returns a copy of the transcript in order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Submit sends text to the backend and reconciles the reply into the
// transcript. It returns false without touching state or the network when the
// trimmed text is empty or another submit is in flight. Otherwise exactly two
// turns are appended and the returned turn is the resolved assistant reply,
// which may be a diagnostic. Submit blocks until reconciliation.
func (s *Session) Submit(ctx context.Context, text string) (Turn, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.pendingID != "" {
		s.mu.Unlock()
		s.logger.Debug().Msg("submit rejected, request in flight")
		return Turn{}, false
	}
	prevState := s.state
	now := s.now()
	user := Turn{ID: s.newID(), Content: text, Sender: SenderUser, CreatedAt: now}
	pending := Turn{ID: s.newID(), Sender: SenderAssistant, CreatedAt: now, Pending: true}
	s.turns = append(s.turns, user, pending)
	s.pendingID = pending.ID
	s.state = StatePending
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.emit(reqCtx, events.TypeTurnAppended, user)
	s.emit(reqCtx, events.TypeTurnAppended, pending)

	content, cancelled := s.exchange(reqCtx, text)

	next := StateResolved
	if cancelled {
		next = prevState
	}
	s.mu.Lock()
	resolved := s.resolveLocked(pending.ID, content, next)
	s.mu.Unlock()

	s.emit(context.WithoutCancel(ctx), events.TypeTurnResolved, resolved)
	return resolved, true
}

// Cancel aborts the in-flight request, if any. The pending turn is resolved
// with CancelledMessage by the Submit call that owns it and the session goes
// back to the state it had before that submit.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// exchange performs the backend call and maps every outcome to the assistant
// text that replaces the placeholder.
func (s *Session) exchange(ctx context.Context, text string) (string, bool) {
	start := time.Now()
	resp, err := s.client.Chat(ctx, backend.ChatRequest{Message: text, SessionID: s.sessionKey})
	if err != nil {
		if backend.IsCanceled(err) {
			s.logger.Info().Msg("chat request cancelled")
			return CancelledMessage, true
		}
		s.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("chat request failed")
		return ConnectionDiagnostic(s.client.BaseURL()), false
	}
	if resp == nil || resp.Response == nil {
		s.logger.Warn().Msg("chat response has no response field")
		return CouldNotProcessMessage, false
	}
	s.logger.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(*resp.Response)).Msg("chat response received")
	return *resp.Response, false
}

// resolveLocked replaces the pending turn by ID.
func (s *Session) resolveLocked(id, content string, next State) Turn {
	var out Turn
	for i := range s.turns {
		if s.turns[i].ID == id {
			s.turns[i].Content = content
			s.turns[i].Pending = false
			out = s.turns[i]
			break
		}
	}
	s.pendingID = ""
	s.cancel = nil
	s.state = next
	return out
}

func (s *Session) emit(ctx context.Context, typ events.Type, t Turn) {
	events.Emit(ctx, s.sink, s.logger, events.Event{
		Type:       typ,
		SessionKey: s.sessionKey,
		Data:       t,
	})
}
