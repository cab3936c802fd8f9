package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestSession(t *testing.T, baseURL string, opts ...SessionOption) *Session {
	t.Helper()
	client, err := backend.NewClient(baseURL, backend.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	var n atomic.Int64
	base := []SessionOption{
		WithLogger(zerolog.Nop()),
		WithIDGenerator(func() string { return fmt.Sprintf("turn-%d", n.Add(1)) }),
		WithClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	s, err := NewSession(client, "session-abc", append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(nil, "k")
	require.Error(t, err)

	client, err := backend.NewClient("")
	require.NoError(t, err)
	_, err = NewSession(client, "k", WithTimeout(0))
	require.Error(t, err)

	s, err := NewSession(client, "  ")
	require.NoError(t, err)
	require.NotEmpty(t, s.SessionKey())
	require.Equal(t, StateIdle, s.State())
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:1")
	ctx := context.Background()

	s.Initialize(ctx)
	first := s.Turns()
	require.Len(t, first, 1)
	require.Equal(t, SenderAssistant, first[0].Sender)
	require.Equal(t, WelcomeMessage, first[0].Content)
	require.False(t, first[0].Pending)

	s.Initialize(ctx)
	require.Equal(t, first, s.Turns())
}

// Successful round trip: the placeholder becomes the backend answer.
func TestSubmit_Success(t *testing.T) {
	var got backend.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"Ticket 13000020 was a login failure caused by an expired token."}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	s := newTestSession(t, srv.URL, WithSink(sink))
	ctx := context.Background()
	s.Initialize(ctx)

	turn, ok := s.Submit(ctx, "  What happened with ticket 13000020?  ")
	require.True(t, ok)
	require.Equal(t, "What happened with ticket 13000020?", got.Message)
	require.Equal(t, "session-abc", got.SessionID)

	turns := s.Turns()
	require.Len(t, turns, 3)
	require.Equal(t, SenderUser, turns[1].Sender)
	require.Equal(t, "What happened with ticket 13000020?", turns[1].Content)
	require.Equal(t, SenderAssistant, turns[2].Sender)
	require.Equal(t, "Ticket 13000020 was a login failure caused by an expired token.", turns[2].Content)
	require.False(t, turns[2].Pending)
	require.Equal(t, turns[2], turn)
	require.Equal(t, "turn-3", turn.ID)

	require.Equal(t, StateResolved, s.State())
	require.False(t, s.IsBusy())
	require.Equal(t, []events.Type{
		events.TypeTurnAppended,
		events.TypeTurnAppended,
		events.TypeTurnAppended,
		events.TypeTurnResolved,
	}, sink.types())
}

// Backend down: the placeholder becomes the connection diagnostic.
func TestSubmit_BackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := newTestSession(t, url)
	s.Initialize(context.Background())

	turn, ok := s.Submit(context.Background(), "hello")
	require.True(t, ok)
	require.Equal(t, ConnectionDiagnostic(url), turn.Content)
	require.Contains(t, turn.Content, url)

	turns := s.Turns()
	require.Len(t, turns, 3)
	for _, tt := range turns {
		require.False(t, tt.Pending)
	}
	require.False(t, s.IsBusy())
}

func TestSubmit_AddsTwoTurnsForEveryOutcome(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		content func(base string) string
	}{
		{"ok", 200, `{"response":"fine"}`, func(string) string { return "fine" }},
		{"missing field", 200, `{"answer":"x"}`, func(string) string { return CouldNotProcessMessage }},
		{"null field", 200, `{"response":null}`, func(string) string { return CouldNotProcessMessage }},
		{"server error", 500, `{"response":"ignored"}`, ConnectionDiagnostic},
		{"malformed", 200, `<html>`, ConnectionDiagnostic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := newTestSession(t, srv.URL)
			s.Initialize(context.Background())
			before := len(s.Turns())

			turn, ok := s.Submit(context.Background(), "question")
			require.True(t, ok)
			require.Len(t, s.Turns(), before+2)
			require.Equal(t, tt.content(srv.URL), turn.Content)
		})
	}
}

func TestSubmit_EmptyIsNoOp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	s.Initialize(context.Background())
	before := s.Turns()

	for _, in := range []string{"", "   ", "\n\t"} {
		_, ok := s.Submit(context.Background(), in)
		require.False(t, ok)
	}
	require.Equal(t, before, s.Turns())
	require.Equal(t, int32(0), hits.Load())
	require.Equal(t, StateIdle, s.State())
}

func TestSubmit_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"response":"done"}`))
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	done := make(chan Turn, 1)
	go func() {
		turn, _ := s.Submit(context.Background(), "first")
		done <- turn
	}()

	require.Eventually(t, s.IsBusy, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StatePending, s.State())

	turns := s.Turns()
	require.Len(t, turns, 2)
	require.True(t, turns[1].Pending)
	pendingID := turns[1].ID

	_, ok := s.Submit(context.Background(), "second")
	require.False(t, ok)
	require.Len(t, s.Turns(), 2)

	close(release)
	turn := <-done
	require.Equal(t, "done", turn.Content)
	require.Equal(t, pendingID, turn.ID)
	require.Equal(t, int32(1), hits.Load())

	pending := 0
	for _, tt := range s.Turns() {
		if tt.Pending {
			pending++
		}
	}
	require.Zero(t, pending)
}

func TestSubmit_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL, WithTimeout(50*time.Millisecond))
	turn, ok := s.Submit(context.Background(), "slow")
	require.True(t, ok)
	require.Equal(t, ConnectionDiagnostic(srv.URL), turn.Content)
	require.Len(t, s.Turns(), 2)
	require.False(t, s.IsBusy())
}

// cancelInFlight starts a submit against a backend that never answers,
// cancels it and returns the resolved placeholder.
func cancelInFlight(t *testing.T, s *Session, text string) Turn {
	t.Helper()
	done := make(chan Turn, 1)
	go func() {
		turn, _ := s.Submit(context.Background(), text)
		done <- turn
	}()
	require.Eventually(t, s.IsBusy, 2*time.Second, 5*time.Millisecond)

	s.Cancel()
	select {
	case turn := <-done:
		return turn
	case <-time.After(3 * time.Second):
		t.Fatal("submit did not return after cancel")
		return Turn{}
	}
}

func TestCancel_ResolvesPendingTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	turn := cancelInFlight(t, s, "never mind")
	require.Equal(t, CancelledMessage, turn.Content)
	require.False(t, turn.Pending)
	require.Len(t, s.Turns(), 2)
	require.False(t, s.IsBusy())
	require.Equal(t, StateIdle, s.State())

	// no-op when idle
	s.Cancel()
}

func TestCancel_RestoresResolvedState(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"response":"first answer"}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s := newTestSession(t, srv.URL)
	_, ok := s.Submit(context.Background(), "first")
	require.True(t, ok)
	require.Equal(t, StateResolved, s.State())

	turn := cancelInFlight(t, s, "second")
	require.Equal(t, CancelledMessage, turn.Content)
	require.Equal(t, StateResolved, s.State())
	require.Len(t, s.Turns(), 4)
}

func TestSubmit_StalledSubscriberDoesNotHoldSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps, err := events.NewPubSub(ctx, events.Settings{}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = ps.Close() }()

	// attached but never acks
	_, err = ps.Subscribe(ctx)
	require.NoError(t, err)

	tests := []struct {
		name    string
		sink    events.Sink
		timeout time.Duration
	}{
		{"request timeout bounds emits", ps.Sink(), 100 * time.Millisecond},
		{"publish timeout bounds emits", ps.Sink(events.WithPublishTimeout(30 * time.Millisecond)), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, srv.URL, WithSink(tt.sink), WithTimeout(tt.timeout))

			done := make(chan Turn, 1)
			go func() {
				turn, _ := s.Submit(context.Background(), "hi")
				done <- turn
			}()
			select {
			case turn := <-done:
				require.False(t, turn.Pending)
			case <-time.After(3 * time.Second):
				t.Fatalf("submit still running, busy=%v state=%s", s.IsBusy(), s.State())
			}
			require.False(t, s.IsBusy())
			require.Equal(t, StateResolved, s.State())
		})
	}
}
