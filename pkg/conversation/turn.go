package conversation

import (
	"fmt"
	"time"
)

// Sender says who wrote a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Turn is one entry of the transcript. A pending assistant turn is a
// placeholder that is later replaced in place, keeping ID and CreatedAt.
type Turn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending,omitempty"`
}

// State is the session's request lifecycle: idle until the first submit,
// pending while a request is in flight, resolved afterwards.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

const (
	WelcomeMessage = "Hello! I'm your ticket analysis assistant. Ask me about any ticket by its ID, " +
		"ticket number or entity key, and I'll tell you what happened, who was involved and how it was resolved."

	CouldNotProcessMessage = "Sorry, I could not process your request."

	CancelledMessage = "Request cancelled."
)

// ConnectionDiagnostic is the assistant turn shown when the backend could not
// be reached or did not answer with a usable body.
func ConnectionDiagnostic(baseURL string) string {
	return fmt.Sprintf("Sorry, I couldn't connect to the ticket analysis backend at %s.\n\n"+
		"Please check that:\n"+
		"1. The backend server is running\n"+
		"2. It is reachable at %s\n\n"+
		"Then try sending your message again.", baseURL, baseURL)
}
