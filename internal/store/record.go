package store

import "encoding/json"

// recordKind tags each line of the append-only log so replay can dispatch
// to the right handler (spec.md §4.1 "Log format").
type recordKind string

const (
	kindMessage  recordKind = "msg"
	kindDelete   recordKind = "delete"
	kindChannel  recordKind = "channel"
	kindDecision recordKind = "decision"
	kindPin      recordKind = "pin"
	kindSettings recordKind = "settings"
)

// envelope is the on-disk shape of every log line: a kind tag plus the
// kind-specific payload, deferred as raw JSON until the kind is known.
type envelope struct {
	Kind    recordKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type deletePayload struct {
	IDs []int64 `json:"ids"`
}

type channelOp string

const (
	channelOpCreate channelOp = "create"
	channelOpRename channelOp = "rename"
	channelOpDelete channelOp = "delete"
)

type channelPayload struct {
	Op      channelOp `json:"op"`
	Name    string    `json:"name"`
	NewName string    `json:"new_name,omitempty"`
}

type decisionOp string

const (
	decisionOpAdd      decisionOp = "add"
	decisionOpApprove  decisionOp = "approve"
	decisionOpUnapprove decisionOp = "unapprove"
	decisionOpEdit     decisionOp = "edit"
	decisionOpDelete   decisionOp = "delete"
)

type decisionPayload struct {
	Op       decisionOp `json:"op"`
	Decision Decision   `json:"decision"`
}

type pinPayload struct {
	MessageID int64      `json:"message_id"`
	Status    *PinStatus `json:"status,omitempty"` // nil means "clear"
}

type settingsPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func encode(kind recordKind, payload interface{}) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(envelope{Kind: kind, Payload: p})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
