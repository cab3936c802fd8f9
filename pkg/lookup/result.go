package lookup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
)

// Outcome is one of Success, NotFound or TransportError.
type Outcome interface {
	outcome()
	Kind() string
}

// Success is a found ticket. ResolvedAt is the backend timestamp, or the
// local clock when the backend sent none.
type Success struct {
	Ticket             backend.TicketRef `json:"ticket"`
	Summary            string            `json:"summary"`
	ConversationLength int               `json:"conversationLength"`
	AttachmentCount    int               `json:"attachmentCount"`
	ResolvedAt         time.Time         `json:"resolvedAt"`
}

// NotFound means the backend answered but had no ticket for the identifier.
type NotFound struct {
	Message string `json:"message"`
}

// TransportError means the backend could not be reached or answered with
// something that was not a summary payload.
type TransportError struct {
	Message string `json:"message"`
}

func (Success) outcome()        {}
func (NotFound) outcome()       {}
func (TransportError) outcome() {}

func (Success) Kind() string        { return "success" }
func (NotFound) Kind() string       { return "notFound" }
func (TransportError) Kind() string { return "transportError" }

// Result is the resolved lookup of one identifier.
type Result struct {
	Identifier string
	Outcome    Outcome
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Identifier string  `json:"identifier"`
		Kind       string  `json:"kind"`
		Outcome    Outcome `json:"outcome"`
	}{Identifier: r.Identifier, Outcome: r.Outcome}
	if r.Outcome != nil {
		out.Kind = r.Outcome.Kind()
	}
	return json.Marshal(out)
}

// Text renders the result for a terminal.
func (r Result) Text() string {
	switch o := r.Outcome.(type) {
	case Success:
		return fmt.Sprintf("Ticket %d (%s)\nMessages: %d  Attachments: %d  Resolved: %s\n\n%s",
			o.Ticket.TicketID, o.Ticket.TicketNumber,
			o.ConversationLength, o.AttachmentCount,
			o.ResolvedAt.Format(time.RFC3339), o.Summary)
	case NotFound:
		return o.Message
	case TransportError:
		return o.Message
	default:
		return ""
	}
}

func notFoundMessage(identifier string, resp *backend.SummaryResponse) string {
	if resp != nil {
		if resp.Message != "" {
			return resp.Message
		}
		if resp.Error != "" {
			return resp.Error
		}
	}
	return `No ticket found for "` + identifier + `"`
}

func transportMessage(baseURL string) string {
	return fmt.Sprintf("Could not reach the summarizer backend at %s. Make sure the server is running and try again.", baseURL)
}
