// Package mcp implements the hub's MCP tool bridge: eight fixed tools that
// let an agent read and post chat, manage decisions and channels, and set
// its persona, each dispatching into the store/router/presence layers
// after validating the caller's session token (spec.md §4.7, §6).
package mcp

import "github.com/agentchattr/agentchattr/internal/store"

// ToolName enumerates the fixed MCP tool surface.
type ToolName string

const (
	ToolChatSend     ToolName = "chat_send"
	ToolChatRead     ToolName = "chat_read"
	ToolChatResync   ToolName = "chat_resync"
	ToolChatJoin     ToolName = "chat_join"
	ToolChatWho      ToolName = "chat_who"
	ToolChatDecision ToolName = "chat_decision"
	ToolChatChannels ToolName = "chat_channels"
	ToolChatSetHat   ToolName = "chat_set_hat"
)

// SendRequest is the body of a chat_send call.
type SendRequest struct {
	Agent   string `json:"agent"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// ReadRequest is the body of a chat_read call.
type ReadRequest struct {
	Agent   string `json:"agent"`
	Channel string `json:"channel,omitempty"`
}

// ReadResponse carries the messages new to the caller's cursor.
type ReadResponse struct {
	Messages []store.Message `json:"messages"`
	Cursor   int64           `json:"cursor"`
}

// ResyncRequest resets an agent's read cursor and returns recent backlog.
type ResyncRequest struct {
	Agent   string `json:"agent"`
	Channel string `json:"channel,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// JoinRequest marks an agent present and posts a join message.
type JoinRequest struct {
	Agent     string `json:"agent"`
	SessionID string `json:"session_id,omitempty"`
}

// WhoRequest refreshes presence and lists known agents. Busy, when set,
// updates the caller's busy flag as a side effect — the heartbeat is the
// only periodic signal a wrapper process has to report activity to the
// hub, so chat_who doubles as the busy-state carrier rather than adding a
// ninth tool.
type WhoRequest struct {
	Agent string `json:"agent"`
	Busy  *bool  `json:"busy,omitempty"`
}

// WhoResponse lists every known agent's presence.
type WhoResponse struct {
	Agents []AgentStatus `json:"agents"`
}

// AgentStatus is the wire shape of one agent's presence.
type AgentStatus struct {
	Agent     string `json:"agent"`
	Online    bool   `json:"online"`
	Busy      bool   `json:"busy"`
	SessionID string `json:"session_id,omitempty"`
}

// DecisionAction selects the chat_decision operation.
type DecisionAction string

const (
	DecisionActionAdd        DecisionAction = "add"
	DecisionActionApprove    DecisionAction = "approve"
	DecisionActionUnapprove  DecisionAction = "unapprove"
	DecisionActionEdit       DecisionAction = "edit"
	DecisionActionDelete     DecisionAction = "delete"
	DecisionActionList       DecisionAction = "list"
)

// DecisionRequest is the body of a chat_decision call.
type DecisionRequest struct {
	Agent  string         `json:"agent"`
	Action DecisionAction `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Text   string         `json:"text,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// DecisionResponse carries either one decision or the full list.
type DecisionResponse struct {
	Decision  *store.Decision  `json:"decision,omitempty"`
	Decisions []store.Decision `json:"decisions,omitempty"`
}

// ChannelAction selects the chat_channels operation.
type ChannelAction string

const (
	ChannelActionList   ChannelAction = "list"
	ChannelActionCreate ChannelAction = "create"
	ChannelActionRename ChannelAction = "rename"
	ChannelActionDelete ChannelAction = "delete"
)

// ChannelsRequest is the body of a chat_channels call.
type ChannelsRequest struct {
	Agent   string        `json:"agent"`
	Action  ChannelAction `json:"action"`
	Name    string        `json:"name,omitempty"`
	NewName string        `json:"new_name,omitempty"`
}

// ChannelsResponse carries either one channel or the full list.
type ChannelsResponse struct {
	Channel  *store.Channel  `json:"channel,omitempty"`
	Channels []store.Channel `json:"channels,omitempty"`
}

// SetHatRequest is the body of a chat_set_hat call.
type SetHatRequest struct {
	Agent string `json:"agent"`
	Hat   string `json:"hat"`
}
