package lookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/persistence/kvstore"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/recent"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const foundPayload = `{
	"success": true,
	"identifier": "13000020",
	"ticket": {"ticketID": 13000020, "ticketNumber": "2025090610000020"},
	"summary": "Customer could not log in; token refreshed.",
	"conversationLength": 4,
	"attachmentCount": 1,
	"timestamp": "2025-01-01T00:00:00Z"
}`

func newTestLookup(t *testing.T, baseURL string, opts ...Option) (*Lookup, kvstore.Store) {
	t.Helper()
	client, err := backend.NewClient(baseURL, backend.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	store := kvstore.NewMemoryStore()
	nop := zerolog.Nop()
	log, err := recent.Load(context.Background(), store, recent.Options{Logger: &nop})
	require.NoError(t, err)

	base := []Option{WithLogger(zerolog.Nop()), WithClock(func() time.Time { return fixedNow })}
	l, err := New(client, log, append(base, opts...)...)
	require.NoError(t, err)
	return l, store
}

func serveJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// Ticket found: payload fields map onto Success and the id lands in the recent log.
func TestLookup_Success(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		serveJSON(200, foundPayload)(w, r)
	}))
	defer srv.Close()

	l, store := newTestLookup(t, srv.URL)
	res, ok := l.Lookup(context.Background(), " 13000020 ")
	require.True(t, ok)
	require.Equal(t, "/summarize/13000020", path.Load())
	require.Equal(t, "13000020", res.Identifier)

	s, isSuccess := res.Outcome.(Success)
	require.True(t, isSuccess)
	require.Equal(t, backend.TicketRef{TicketID: 13000020, TicketNumber: "2025090610000020"}, s.Ticket)
	require.Equal(t, "Customer could not log in; token refreshed.", s.Summary)
	require.Equal(t, 4, s.ConversationLength)
	require.Equal(t, 1, s.AttachmentCount)
	require.True(t, s.ResolvedAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.Equal(t, []string{"13000020"}, l.Recent())
	raw, found, err := store.Get(context.Background(), recent.StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `["13000020"]`, raw)

	cur, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, res, cur)
	require.Equal(t, StateResolved, l.State())
	require.False(t, l.IsBusy())
}

func TestLookup_TimestampFallsBackToClock(t *testing.T) {
	for _, ts := range []string{"", "yesterday"} {
		body := `{"success":true,"summary":"s","timestamp":"` + ts + `"}`
		srv := httptest.NewServer(serveJSON(200, body))
		l, _ := newTestLookup(t, srv.URL)

		res, ok := l.Lookup(context.Background(), "1")
		require.True(t, ok)
		require.Equal(t, fixedNow, res.Outcome.(Success).ResolvedAt)
		srv.Close()
	}
}

// Ticket missing: success=false maps onto NotFound and the log is untouched.
func TestLookup_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message wins", 404, `{"success":false,"message":"Ticket 999 does not exist","error":"not found"}`, "Ticket 999 does not exist"},
		{"error used", 200, `{"success":false,"error":"not found"}`, "not found"},
		{"default", 404, `{"success":false}`, `No ticket found for "999"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(serveJSON(tt.status, tt.body))
			defer srv.Close()

			l, store := newTestLookup(t, srv.URL)
			res, ok := l.Lookup(context.Background(), "999")
			require.True(t, ok)
			require.Equal(t, NotFound{Message: tt.want}, res.Outcome)
			require.Empty(t, l.Recent())

			_, found, err := store.Get(context.Background(), recent.StorageKey)
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestLookup_TransportFailures(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	htmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer htmlSrv.Close()

	for _, base := range []string{downURL, htmlSrv.URL} {
		l, _ := newTestLookup(t, base)
		res, ok := l.Lookup(context.Background(), "13000020")
		require.True(t, ok)
		te, isTransport := res.Outcome.(TransportError)
		require.True(t, isTransport)
		require.Contains(t, te.Message, base)
		require.Empty(t, l.Recent())
	}
}

func TestLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	l, _ := newTestLookup(t, srv.URL, WithTimeout(50*time.Millisecond))
	res, ok := l.Lookup(context.Background(), "1")
	require.True(t, ok)
	require.IsType(t, TransportError{}, res.Outcome)
}

func TestLookup_EmptyIsNoOp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	l, _ := newTestLookup(t, srv.URL)
	_, ok := l.Lookup(context.Background(), "   ")
	require.False(t, ok)
	_, ok = l.UseExample(context.Background(), "")
	require.False(t, ok)
	require.Equal(t, int32(0), hits.Load())
	require.Equal(t, StateIdle, l.State())
	_, ok = l.Current()
	require.False(t, ok)
}

func TestLookup_RecentOrdering(t *testing.T) {
	srv := httptest.NewServer(serveJSON(200, `{"success":true,"summary":"ok"}`))
	defer srv.Close()

	l, _ := newTestLookup(t, srv.URL)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		_, ok := l.Lookup(ctx, id)
		require.True(t, ok)
	}
	require.Equal(t, []string{"f", "e", "d", "c", "b"}, l.Recent())

	_, ok := l.UseRecent(ctx, "d")
	require.True(t, ok)
	require.Equal(t, []string{"d", "f", "e", "c", "b"}, l.Recent())
}

func TestLookup_SingleFlightAndCancelRestoresPrevious(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/summarize/slow" {
			select {
			case <-r.Context().Done():
			case <-block:
			}
			return
		}
		serveJSON(200, foundPayload)(w, r)
	}))
	defer srv.Close()
	defer close(block)

	l, _ := newTestLookup(t, srv.URL)
	ctx := context.Background()
	first, ok := l.Lookup(ctx, "13000020")
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		_, ok := l.Lookup(ctx, "slow")
		done <- ok
	}()
	require.Eventually(t, l.IsBusy, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StatePending, l.State())
	_, hasCurrent := l.Current()
	require.False(t, hasCurrent)

	_, ok = l.Lookup(ctx, "13000020")
	require.False(t, ok)

	l.Cancel()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("lookup did not return after cancel")
	}

	cur, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, first, cur)
	require.Equal(t, StateResolved, l.State())
	require.False(t, l.IsBusy())
	require.Equal(t, []string{"13000020"}, l.Recent())
}

func TestResult_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Result{Identifier: "x", Outcome: NotFound{Message: "nope"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"identifier":"x","kind":"notFound","outcome":{"message":"nope"}}`, string(b))
}

func TestExamples(t *testing.T) {
	l, _ := newTestLookup(t, "http://127.0.0.1:1")
	require.Equal(t, DefaultExamples, l.Examples())

	l, _ = newTestLookup(t, "http://127.0.0.1:1", WithExamples(" 1 ", "", "2"))
	require.Equal(t, []string{"1", "2"}, l.Examples())
}

func TestFetch_ReportsWhyNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	l, _ := newTestLookup(t, srv.URL)
	ctx := context.Background()

	_, err := l.Fetch(ctx, "  ")
	require.ErrorIs(t, err, ErrEmptyIdentifier)

	done := make(chan error, 1)
	go func() {
		_, err := l.Fetch(ctx, "slow")
		done <- err
	}()
	require.Eventually(t, l.IsBusy, 2*time.Second, 5*time.Millisecond)

	_, err = l.Fetch(ctx, "13000020")
	require.ErrorIs(t, err, ErrBusy)

	l.Cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(3 * time.Second):
		t.Fatal("fetch did not return after cancel")
	}
	require.Equal(t, StateIdle, l.State())
}

func TestLookup_StalledSubscriberDoesNotHoldLookup(t *testing.T) {
	srv := httptest.NewServer(serveJSON(200, foundPayload))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps, err := events.NewPubSub(ctx, events.Settings{}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = ps.Close() }()

	// attached but never acks
	_, err = ps.Subscribe(ctx)
	require.NoError(t, err)

	l, _ := newTestLookup(t, srv.URL,
		WithSink(ps.Sink(events.WithPublishTimeout(30*time.Millisecond))),
		WithTimeout(time.Second))

	done := make(chan bool, 1)
	go func() {
		_, ok := l.Lookup(context.Background(), "13000020")
		done <- ok
	}()
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatalf("lookup still running, busy=%v state=%s", l.IsBusy(), l.State())
	}
	require.False(t, l.IsBusy())
	require.Equal(t, []string{"13000020"}, l.Recent())
}
