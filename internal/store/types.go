// Package store is the chat hub's authoritative, append-only persistence
// layer for messages, channels, pins, decisions, and settings (spec.md §4.1).
//
// The durable log is a flat file of newline-delimited JSON records (one
// record per line, spec.md §9), not a relational database: replay rebuilds
// all in-memory indexes on startup, and malformed lines are skipped rather
// than failing the whole load. See DESIGN.md for why this deviates from the
// teacher's SQLite-backed store.
package store

// MessageType tags the kind of a Message.
type MessageType string

const (
	TypeMessage MessageType = "message"
	TypeSystem  MessageType = "system"
	TypeJoin    MessageType = "join"
	TypeLeave   MessageType = "leave"
)

// Attachment is an image (or other file) attached to a message.
type Attachment struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

// Message is one chat message. Immutable after insert except for deletion.
type Message struct {
	ID          int64        `json:"id"`
	Sender      string       `json:"sender"`
	Channel     string       `json:"channel"`
	Text        string       `json:"text"`
	Timestamp   int64        `json:"timestamp"` // seconds since epoch
	DisplayTime string       `json:"display_time"`
	ReplyTo     *int64       `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Type        MessageType  `json:"type"`
	Deleted     bool         `json:"-"`
}

// PinStatus is the lifecycle state of a pinned message.
type PinStatus string

const (
	PinTodo PinStatus = "todo"
	PinDone PinStatus = "done"
)

// DecisionStatus is the approval state of a Decision.
type DecisionStatus string

const (
	DecisionProposed DecisionStatus = "proposed"
	DecisionApproved DecisionStatus = "approved"
)

// MaxDecisions is the cap on live decisions (spec.md §3).
const MaxDecisions = 30

// MaxDecisionTextLen is the max length of a decision's text or reason fields.
const MaxDecisionTextLen = 80

// Decision is a small, human-approved note representing durable guidance.
type Decision struct {
	ID     int64          `json:"id"`
	Owner  string         `json:"owner"`
	Text   string         `json:"text"`
	Reason string         `json:"reason,omitempty"`
	Status DecisionStatus `json:"status"`
}

// Channel is a named message stream.
type Channel struct {
	Name string `json:"name"`
	// Tombstoned channels are retained (per SPEC_FULL.md §3 resolution of
	// the channel-deletion open question) but excluded from ListChannels
	// and refuse new messages.
	Tombstoned bool `json:"tombstoned,omitempty"`
}
