// Package lookup resolves a single ticket identifier to a summary through the
// backend /summarize endpoint and records successful identifiers in the
// recent search log.
package lookup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/recent"
)

// DefaultTimeout bounds a single summarize request.
const DefaultTimeout = 30 * time.Second

// DefaultExamples has one identifier per accepted form: ticket ID, ticket
// number and entity key.
var DefaultExamples = []string{"13000020", "2025090610000020", "ENT-48213"}

// State is the lookup lifecycle: idle until the first lookup, pending while
// one is in flight, resolved once a result is shown.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

var (
	ErrEmptyIdentifier = errors.New("empty identifier")
	ErrBusy            = errors.New("a lookup is already running")
	ErrCancelled       = errors.New("lookup cancelled")
)

// SummaryClient is the part of backend.Client a Lookup needs.
type SummaryClient interface {
	Summarize(ctx context.Context, identifier string) (*backend.SummaryResponse, error)
	BaseURL() string
}

// Lookup holds the current summary result and the single in-flight request,
// if any. It is safe for concurrent use.
type Lookup struct {
	client   SummaryClient
	recent   *recent.Log
	timeout  time.Duration
	logger   zerolog.Logger
	sink     events.Sink
	now      func() time.Time
	examples []string

	mu      sync.Mutex
	state   State
	current *Result
	busy    bool
	cancel  context.CancelFunc
}

type Option func(*Lookup) error

// WithTimeout bounds each summarize request. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Lookup) error {
		if d <= 0 {
			return errors.Errorf("invalid timeout %s", d)
		}
		l.timeout = d
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lookup) error {
		l.logger = logger
		return nil
	}
}

// WithSink sets where lookup events go. A nil sink drops them.
func WithSink(sink events.Sink) Option {
	return func(l *Lookup) error {
		if sink == nil {
			sink = events.NopSink{}
		}
		l.sink = sink
		return nil
	}
}

// WithClock sets the fallback for ResolvedAt when the backend sends no
// usable timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Lookup) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		l.now = now
		return nil
	}
}

// WithExamples replaces DefaultExamples. Blank entries are dropped.
func WithExamples(ids ...string) Option {
	return func(l *Lookup) error {
		var out []string
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		l.examples = out
		return nil
	}
}

// New returns an idle Lookup that records successful identifiers in recentLog.
func New(client SummaryClient, recentLog *recent.Log, options ...Option) (*Lookup, error) {
	if client == nil {
		return nil, errors.New("summary client is nil")
	}
	if recentLog == nil {
		return nil, errors.New("recent log is nil")
	}
	l := &Lookup{
		client:   client,
		recent:   recentLog,
		timeout:  DefaultTimeout,
		logger:   log.Logger,
		sink:     events.NopSink{},
		now:      time.Now,
		examples: append([]string(nil), DefaultExamples...),
		state:    StateIdle,
	}
	for _, opt := range options {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With().Str("component", "lookup").Logger()
	return l, nil
}

// Lookup fetches the summary for identifier and makes it the current result.
// It returns false without any state change or network call when the trimmed
// identifier is empty or a lookup is already running, and also when the
// request is cancelled, in which case the previous result is restored.
func (l *Lookup) Lookup(ctx context.Context, identifier string) (Result, bool) {
	res, err := l.Fetch(ctx, identifier)
	return res, err == nil
}

// Fetch is Lookup reporting why no result was produced: ErrEmptyIdentifier,
// ErrBusy or ErrCancelled. Transport failures and unknown tickets are results,
// not errors.
func (l *Lookup) Fetch(ctx context.Context, identifier string) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Result{}, ErrEmptyIdentifier
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		l.logger.Debug().Str("identifier", identifier).Msg("lookup rejected, request in flight")
		return Result{}, ErrBusy
	}
	prevState, prev := l.state, l.current
	l.busy = true
	l.current = nil
	l.state = StatePending
	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	l.emit(reqCtx, events.TypeLookupStarted, l.Snapshot())

	start := time.Now()
	resp, err := l.client.Summarize(reqCtx, identifier)
	if backend.IsCanceled(err) {
		l.logger.Info().Str("identifier", identifier).Msg("lookup cancelled")
		l.mu.Lock()
		l.busy = false
		l.cancel = nil
		l.current = prev
		l.state = prevState
		l.mu.Unlock()
		l.emit(context.WithoutCancel(ctx), events.TypeLookupResolved, l.Snapshot())
		return Result{}, ErrCancelled
	}

	result := Result{Identifier: identifier}
	switch {
	case err != nil:
		l.logger.Warn().Err(err).Str("identifier", identifier).Dur("elapsed", time.Since(start)).Msg("summarize request failed")
		result.Outcome = TransportError{Message: transportMessage(l.client.BaseURL())}
	case !resp.Success:
		l.logger.Debug().Str("identifier", identifier).Msg("ticket not found")
		result.Outcome = NotFound{Message: notFoundMessage(identifier, resp)}
	default:
		result.Outcome = l.success(resp)
	}

	// the log is only touched on success
	if _, ok := result.Outcome.(Success); ok {
		if err := l.recent.Push(context.WithoutCancel(ctx), identifier); err != nil {
			l.logger.Warn().Err(err).Str("identifier", identifier).Msg("failed to persist recent searches")
		}
		l.emit(context.WithoutCancel(ctx), events.TypeRecentUpdated, l.recent.Entries())
	}

	l.mu.Lock()
	l.busy = false
	l.cancel = nil
	l.current = &result
	l.state = StateResolved
	l.mu.Unlock()

	l.emit(context.WithoutCancel(ctx), events.TypeLookupResolved, l.Snapshot())
	return result, nil
}

func (l *Lookup) success(resp *backend.SummaryResponse) Success {
	s := Success{
		Summary:            resp.Summary,
		ConversationLength: resp.ConversationLength,
		AttachmentCount:    resp.AttachmentCount,
		ResolvedAt:         l.now(),
	}
	if resp.Ticket != nil {
		s.Ticket = *resp.Ticket
	}
	if ts := strings.TrimSpace(resp.Timestamp); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			s.ResolvedAt = parsed
		} else {
			l.logger.Debug().Str("timestamp", ts).Msg("unparseable timestamp, using local clock")
		}
	}
	return s
}

// UseRecent looks up an identifier picked from the recent log.
func (l *Lookup) UseRecent(ctx context.Context, identifier string) (Result, bool) {
	return l.Lookup(ctx, identifier)
}

// UseExample looks up an identifier picked from Examples.
func (l *Lookup) UseExample(ctx context.Context, identifier string) (Result, bool) {
	return l.Lookup(ctx, identifier)
}

// Cancel aborts a running lookup, if any.
func (l *Lookup) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Examples returns a copy of the example identifiers offered to the user.
func (l *Lookup) Examples() []string {
	return append([]string(nil), l.examples...)
}

// Recent returns the recent log, most recent first.
func (l *Lookup) Recent() []string {
	return l.recent.Entries()
}

func (l *Lookup) Current() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Result{}, false
	}
	return *l.current, true
}

func (l *Lookup) IsBusy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

func (l *Lookup) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot is the presentation view of the component.
type Snapshot struct {
	State    State    `json:"state"`
	Busy     bool     `json:"busy"`
	Current  *Result  `json:"current,omitempty"`
	Recent   []string `json:"recent"`
	Examples []string `json:"examples"`
}

func (l *Lookup) Snapshot() Snapshot {
	l.mu.Lock()
	s := Snapshot{State: l.state, Busy: l.busy}
	if l.current != nil {
		c := *l.current
		s.Current = &c
	}
	l.mu.Unlock()
	s.Recent = l.recent.Entries()
	s.Examples = l.Examples()
	if s.Recent == nil {
		s.Recent = []string{}
	}
	return s
}

func (l *Lookup) emit(ctx context.Context, typ events.Type, data any) {
	events.Emit(ctx, l.sink, l.logger, events.Event{Type: typ, Data: data})
}
