package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/util/timefmt"
	"github.com/agentchattr/agentchattr/internal/validate"
)

// EventKind tags the notifications a Store emits to registered observers
// (spec.md §4.1 "Observer registration").
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventDelete   EventKind = "delete"
	EventChannel  EventKind = "channel"
	EventDecision EventKind = "decision"
	EventPin      EventKind = "pin"
	EventSettings EventKind = "settings"
)

// Observer is invoked synchronously after the durable write for an event
// succeeds. The payload's concrete type depends on kind:
//
//	EventMessage  -> Message
//	EventDelete   -> []int64
//	EventChannel  -> Channel
//	EventDecision -> Decision
//	EventPin      -> PinUpdate
//	EventSettings -> SettingsUpdate
type Observer func(kind EventKind, payload interface{})

// PinUpdate describes a pin/unpin notification.
type PinUpdate struct {
	MessageID int64
	Status    *PinStatus // nil means cleared
}

// SettingsUpdate describes a settings change notification.
type SettingsUpdate struct {
	Key   string
	Value json.RawMessage
}

// Store is the in-process, single-writer authority over chat state. All
// mutation methods append a record to the durable log before updating
// in-memory indexes and notifying observers, in that order.
type Store struct {
	mu sync.Mutex

	log *os.File

	nextID   int64
	messages []Message // index i holds the message with ID i+1

	channels map[string]*Channel

	decisions   []Decision
	decisionSeq int64

	pins map[int64]PinStatus

	settings map[string]json.RawMessage

	observers map[EventKind][]Observer

	logger *slog.Logger
}

// Open replays path (if it exists) and returns a Store ready to accept
// writes, appending new records to the same file.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		channels:  map[string]*Channel{validate.DefaultChannel: {Name: validate.DefaultChannel}},
		pins:      map[int64]PinStatus{},
		settings:  map[string]json.RawMessage{},
		observers: map[EventKind][]Observer{},
		logger:    logger,
	}

	if err := s.replay(path); err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "replay chat log", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "open chat log for append", err)
	}
	s.log = f
	return s, nil
}

// Close flushes and closes the durable log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	return s.log.Close()
}

// Observe registers fn to be called after every successful write of kind.
func (s *Store) Observe(kind EventKind, fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[kind] = append(s.observers[kind], fn)
}

// notify must be called with s.mu NOT held, since observers may call back
// into the Store.
func (s *Store) notify(kind EventKind, payload interface{}) {
	s.mu.Lock()
	fns := append([]Observer{}, s.observers[kind]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(kind, payload)
	}
}

func (s *Store) write(kind recordKind, payload interface{}) error {
	line, err := encode(kind, payload)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "encode record", err)
	}
	if _, err := s.log.Write(line); err != nil {
		return apperr.Wrap(apperr.Persistence, "append record", err)
	}
	if err := s.log.Sync(); err != nil {
		return apperr.Wrap(apperr.Persistence, "sync chat log", err)
	}
	return nil
}

// Append assigns the next id, durably writes msg, and returns the stored
// copy. Timestamp/DisplayTime are stamped at append time if zero.
//
// Observers run after s.mu is released: a handler is free to call back
// into the Store (e.g. the router posting a loop-guard system message)
// without deadlocking, at the cost of the handler racing fresh writes from
// other goroutines.
func (s *Store) Append(msg Message) (Message, error) {
	s.mu.Lock()

	ch, ok := s.channels[msg.Channel]
	if !ok || ch.Tombstoned {
		s.mu.Unlock()
		return Message{}, apperr.New(apperr.Validation, fmt.Sprintf("channel %q does not accept messages", msg.Channel))
	}

	s.nextID++
	msg.ID = s.nextID
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	if msg.DisplayTime == "" {
		msg.DisplayTime = timefmt.DisplayTime(time.Unix(msg.Timestamp, 0))
	}
	if msg.Type == "" {
		msg.Type = TypeMessage
	}

	if err := s.write(kindMessage, msg); err != nil {
		s.nextID--
		s.mu.Unlock()
		return Message{}, err
	}

	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(EventMessage, msg)
	return msg, nil
}

// Delete marks ids as removed and emits one delete notification for the
// full set, regardless of how many ids were actually live.
func (s *Store) Delete(ids []int64) error {
	s.mu.Lock()

	if err := s.write(kindDelete, deletePayload{IDs: ids}); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, id := range ids {
		if idx := int(id) - 1; idx >= 0 && idx < len(s.messages) {
			s.messages[idx].Deleted = true
		}
		delete(s.pins, id)
	}
	s.mu.Unlock()

	s.notify(EventDelete, ids)
	return nil
}

// Recent returns up to limit non-deleted messages from channel in id
// order, most recent last. limit<=0 means no limit.
func (s *Store) Recent(channel string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.messages {
		if m.Deleted || (channel != "" && m.Channel != channel) {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Since returns all non-deleted messages with ID > cursor, in id order,
// optionally filtered to a single channel. This is the resync primitive:
// a cursor that skips tombstoned ids never produces a gap, since ids are
// assigned densely and monotonically.
func (s *Store) Since(cursor int64, channel string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.messages {
		if m.ID <= cursor || m.Deleted {
			continue
		}
		if channel != "" && m.Channel != channel {
			continue
		}
		out = append(out, m)
	}
	return out
}

// replay rebuilds all in-memory indexes from path. Missing files are not
// an error (fresh install); malformed lines are skipped with a warning
// rather than aborting the load.
func (s *Store) replay(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			s.logger.Warn("skipping malformed log line", "line", lineNo, "error", err)
			continue
		}
		if err := s.applyReplay(env); err != nil {
			s.logger.Warn("skipping unreplayable log line", "line", lineNo, "kind", env.Kind, "error", err)
			continue
		}
	}
	return scanner.Err()
}

func (s *Store) applyReplay(env envelope) error {
	switch env.Kind {
	case kindMessage:
		var m Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return err
		}
		if _, ok := s.channels[m.Channel]; !ok {
			s.channels[m.Channel] = &Channel{Name: m.Channel}
		}
		s.messages = append(s.messages, m)
		if m.ID > s.nextID {
			s.nextID = m.ID
		}
	case kindDelete:
		var p deletePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		for _, id := range p.IDs {
			if idx := int(id) - 1; idx >= 0 && idx < len(s.messages) {
				s.messages[idx].Deleted = true
			}
			delete(s.pins, id)
		}
	case kindChannel:
		var p channelPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.applyChannelReplay(p)
	case kindDecision:
		var p decisionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.applyDecisionReplay(p)
	case kindPin:
		var p pinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if p.Status == nil {
			delete(s.pins, p.MessageID)
		} else {
			s.pins[p.MessageID] = *p.Status
		}
	case kindSettings:
		var p settingsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.settings[p.Key] = p.Value
	default:
		return fmt.Errorf("unknown record kind %q", env.Kind)
	}
	return nil
}
