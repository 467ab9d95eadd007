package store

import "github.com/agentchattr/agentchattr/internal/apperr"

// SetPin marks messageID with status, pinning it to the todo list.
func (s *Store) SetPin(messageID int64, status PinStatus) error {
	s.mu.Lock()

	if idx := int(messageID) - 1; idx < 0 || idx >= len(s.messages) || s.messages[idx].Deleted {
		s.mu.Unlock()
		return apperr.New(apperr.Validation, "cannot pin a deleted or unknown message")
	}

	st := status
	if err := s.write(kindPin, pinPayload{MessageID: messageID, Status: &st}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pins[messageID] = status
	s.mu.Unlock()

	s.notify(EventPin, PinUpdate{MessageID: messageID, Status: &st})
	return nil
}

// ClearPin removes a pin. Pins are also cleared implicitly when their
// underlying message is deleted (see Store.Delete).
func (s *Store) ClearPin(messageID int64) error {
	s.mu.Lock()

	if err := s.write(kindPin, pinPayload{MessageID: messageID, Status: nil}); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.pins, messageID)
	s.mu.Unlock()

	s.notify(EventPin, PinUpdate{MessageID: messageID, Status: nil})
	return nil
}

// Pin is a message paired with its pin status, for list rendering.
type Pin struct {
	Message Message
	Status  PinStatus
}

// ListPins returns all currently pinned, non-deleted messages.
func (s *Store) ListPins() []Pin {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pin, 0, len(s.pins))
	for id, status := range s.pins {
		idx := int(id) - 1
		if idx < 0 || idx >= len(s.messages) || s.messages[idx].Deleted {
			continue
		}
		out = append(out, Pin{Message: s.messages[idx], Status: status})
	}
	return out
}
