package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/conversation"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/lookup"
)

const maxRequestBytes = 64 << 10

// statusClientClosedRequest answers a lookup that was cancelled before it
// produced a result (nginx's 499).
const statusClientClosedRequest = 499

// ChatSession is the conversation surface served over HTTP.
type ChatSession interface {
	Submit(ctx context.Context, text string) (conversation.Turn, bool)
	Turns() []conversation.Turn
	IsBusy() bool
	State() conversation.State
	SessionKey() string
	Cancel()
}

// SummaryLookup is the lookup surface served over HTTP.
type SummaryLookup interface {
	Fetch(ctx context.Context, identifier string) (lookup.Result, error)
	Snapshot() lookup.Snapshot
	Recent() []string
	IsBusy() bool
	Cancel()
}

type chatView struct {
	SessionKey string              `json:"sessionKey"`
	State      conversation.State  `json:"state"`
	Busy       bool                `json:"busy"`
	Turns      []conversation.Turn `json:"turns"`
}

func chatSnapshot(s ChatSession) chatView {
	turns := s.Turns()
	if turns == nil {
		turns = []conversation.Turn{}
	}
	return chatView{
		SessionKey: s.SessionKey(),
		State:      s.State(),
		Busy:       s.IsBusy(),
		Turns:      turns,
	}
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("response write failed")
	}
}

func decodeBody(req *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(req.Body, maxRequestBytes)).Decode(v)
}

func newChatTurnsHandler(s ChatSession, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, http.StatusOK, chatSnapshot(s))
	}
}

func newChatSubmitHandler(s ChatSession, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(req, &body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			http.Error(w, "missing message", http.StatusBadRequest)
			return
		}
		turn, ok := s.Submit(req.Context(), body.Message)
		if !ok {
			http.Error(w, "a message is already being processed", http.StatusConflict)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]any{"turn": turn})
	}
}

func newCancelHandler(cancel func()) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

func newLookupHandler(l SummaryLookup, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			writeJSON(w, logger, http.StatusOK, l.Snapshot())
		case http.MethodPost:
			var body struct {
				Identifier string `json:"identifier"`
			}
			if err := decodeBody(req, &body); err != nil {
				http.Error(w, "invalid json body", http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(body.Identifier) == "" {
				http.Error(w, "missing identifier", http.StatusBadRequest)
				return
			}
			res, err := l.Fetch(req.Context(), body.Identifier)
			switch {
			case err == nil:
				writeJSON(w, logger, http.StatusOK, res)
			case errors.Is(err, lookup.ErrBusy):
				http.Error(w, "a lookup is already running", http.StatusConflict)
			case errors.Is(err, lookup.ErrCancelled):
				// the previous result is back in place
				writeJSON(w, logger, statusClientClosedRequest, l.Snapshot())
			default:
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func newRecentHandler(l SummaryLookup, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		recent := l.Recent()
		if recent == nil {
			recent = []string{}
		}
		writeJSON(w, logger, http.StatusOK, map[string]any{"recent": recent})
	}
}

type wsHello struct {
	Type   string          `json:"type"`
	At     time.Time       `json:"at"`
	Chat   chatView        `json:"chat"`
	Lookup lookup.Snapshot `json:"lookup"`
}

// newWSHandler attaches the connection to the pool, sends the current state as
// a ws.hello frame and answers "ping" text frames with a ws.pong frame. Events
// reach the client through the pool's broadcasts.
func newWSHandler(s ChatSession, l SummaryLookup, pool *ConnectionPool, upgrader websocket.Upgrader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Debug().Err(err).Msg("ws upgrade failed")
			return
		}
		wsLog := logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
		pool.Add(conn)
		wsLog.Info().Msg("ws connected")

		if b, err := json.Marshal(wsHello{Type: "ws.hello", At: time.Now(), Chat: chatSnapshot(s), Lookup: l.Snapshot()}); err == nil {
			pool.SendToOne(conn, b)
		}

		go func() {
			defer pool.Remove(conn)
			defer wsLog.Info().Msg("ws disconnected")
			for {
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					wsLog.Debug().Err(err).Msg("ws read loop end")
					return
				}
				if msgType == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
					pong, _ := json.Marshal(map[string]any{"type": "ws.pong", "at": time.Now()})
					pool.SendToOne(conn, pong)
				}
			}
		}()
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
