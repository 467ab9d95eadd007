// Package hubserver is the chat hub's HTTP/WebSocket surface: the browser
// UI, the bidirectional event channel, image upload, and the two
// best-effort desktop-integration endpoints (spec.md §4.5).
package hubserver

import (
	"encoding/json"

	"github.com/agentchattr/agentchattr/internal/store"
)

// FrameType tags the JSON envelope every WebSocket frame carries.
type FrameType string

// Client-to-server frame types.
const (
	FrameMessage          FrameType = "message"
	FrameUpdateSettings   FrameType = "update_settings"
	FrameTodoAdd          FrameType = "todo_add"
	FrameTodoToggle       FrameType = "todo_toggle"
	FrameTodoRemove       FrameType = "todo_remove"
	FrameDelete           FrameType = "delete"
	FrameDecisionPropose  FrameType = "decision_propose"
	FrameDecisionApprove  FrameType = "decision_approve"
	FrameDecisionUnapprove FrameType = "decision_unapprove"
	FrameDecisionEdit     FrameType = "decision_edit"
	FrameDecisionDelete   FrameType = "decision_delete"
	FrameChannelCreate    FrameType = "channel_create"
	FrameChannelRename    FrameType = "channel_rename"
	FrameChannelDelete    FrameType = "channel_delete"
	// FrameTyping is accepted from the browser in addition to the frames
	// named in spec.md §4.5, so the human-typing indicator the UI needs can
	// drive the documented server-to-client "typing" broadcast.
	FrameTyping FrameType = "typing"
)

// Server-to-client frame types.
const (
	FrameClear           FrameType = "clear"
	FrameTodos           FrameType = "todos"
	FrameTodoUpdate      FrameType = "todo_update"
	FrameDecisions       FrameType = "decisions"
	FrameDecision        FrameType = "decision"
	FrameStatus          FrameType = "status"
	FrameSettings        FrameType = "settings"
	FrameAgents          FrameType = "agents"
	FrameChannelRenamed  FrameType = "channel_renamed"
	// FrameChannels is a full channel-list snapshot, sent on connect and on
	// any channel create/rename/delete. It is not separately enumerated in
	// spec.md §4.5's frame list, but the UI cannot offer a channel switcher
	// without it.
	FrameChannels FrameType = "channels"
)

// ClientFrame is the envelope a browser connection sends. Only the fields
// relevant to Type are populated; the rest are zero.
type ClientFrame struct {
	Type FrameType `json:"type"`

	// message
	Sender      string              `json:"sender,omitempty"`
	Channel     string              `json:"channel,omitempty"`
	Text        string              `json:"text,omitempty"`
	ReplyTo     *int64              `json:"reply_to,omitempty"`
	Attachments []store.Attachment  `json:"attachments,omitempty"`

	// delete
	IDs []int64 `json:"ids,omitempty"`

	// update_settings
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// todo_*
	MessageID int64          `json:"message_id,omitempty"`
	Status    store.PinStatus `json:"status,omitempty"`

	// decision_*
	DecisionID     int64  `json:"decision_id,omitempty"`
	Owner          string `json:"owner,omitempty"`
	DecisionText   string `json:"decision_text,omitempty"`
	DecisionReason string `json:"decision_reason,omitempty"`

	// channel_*
	Name    string `json:"name,omitempty"`
	NewName string `json:"new_name,omitempty"`

	// typing
	Agent string `json:"agent,omitempty"`
}

// ServerFrame is the envelope broadcast to every connected browser.
type ServerFrame struct {
	Type FrameType `json:"type"`

	Message  *store.Message   `json:"message,omitempty"`
	IDs      []int64          `json:"ids,omitempty"`
	Todos    []store.Pin      `json:"todos,omitempty"`
	Decisions []store.Decision `json:"decisions,omitempty"`
	Decision *store.Decision  `json:"decision,omitempty"`
	Agents   []AgentView      `json:"agents,omitempty"`
	Channels []store.Channel  `json:"channels,omitempty"`

	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	Agent   string `json:"agent,omitempty"`
	Busy    bool   `json:"busy,omitempty"`
	Online  bool   `json:"online,omitempty"`

	OldName string `json:"old_name,omitempty"`
	NewName string `json:"new_name,omitempty"`
}

// AgentView is the wire shape of one agent's presence in an "agents" frame.
type AgentView struct {
	Agent  string `json:"agent"`
	Online bool   `json:"online"`
	Busy   bool   `json:"busy"`
}
