package backend

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is the body returned by POST /chat. Response is nil when the
// backend answered with well-formed JSON that lacks the field.
type ChatResponse struct {
	Response *string `json:"response"`
}

// TicketRef identifies the ticket a summary was produced for.
type TicketRef struct {
	TicketID     int64  `json:"ticketID"`
	TicketNumber string `json:"ticketNumber"`
}

// SummaryResponse is the body returned by GET /summarize/{identifier}.
//
// Success=false carries a logical failure (typically "not found") in Message
// or Error; the HTTP status may still be 2xx.
type SummaryResponse struct {
	Success            bool       `json:"success"`
	Identifier         string     `json:"identifier"`
	Ticket             *TicketRef `json:"ticket,omitempty"`
	Summary            string     `json:"summary"`
	ConversationLength int        `json:"conversationLength"`
	AttachmentCount    int        `json:"attachmentCount"`
	Timestamp          string     `json:"timestamp"`
	Error              string     `json:"error,omitempty"`
	Message            string     `json:"message,omitempty"`
}
