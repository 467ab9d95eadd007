package store

import (
	"fmt"
	"sort"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/validate"
)

// CreateChannel adds a new, non-tombstoned channel.
func (s *Store) CreateChannel(name string) (Channel, error) {
	if err := validate.ChannelName(name); err != nil {
		return Channel{}, apperr.Wrap(apperr.Validation, "invalid channel name", err)
	}

	s.mu.Lock()

	if ch, exists := s.channels[name]; exists && !ch.Tombstoned {
		s.mu.Unlock()
		return Channel{}, apperr.New(apperr.Validation, fmt.Sprintf("channel %q already exists", name))
	}

	p := channelPayload{Op: channelOpCreate, Name: name}
	if err := s.write(kindChannel, p); err != nil {
		s.mu.Unlock()
		return Channel{}, err
	}
	s.applyChannelReplay(p)
	ch := *s.channels[name]
	s.mu.Unlock()

	s.notify(EventChannel, ch)
	return ch, nil
}

// RenameChannel renames an existing mutable channel and moves its stored
// messages to the new name, so renaming X to Y and back to X leaves every
// message under X again.
func (s *Store) RenameChannel(oldName, newName string) (Channel, error) {
	if err := validate.ChannelMutable(oldName); err != nil {
		return Channel{}, apperr.Wrap(apperr.Validation, "cannot rename channel", err)
	}
	if err := validate.ChannelName(newName); err != nil {
		return Channel{}, apperr.Wrap(apperr.Validation, "invalid channel name", err)
	}

	s.mu.Lock()

	ch, ok := s.channels[oldName]
	if !ok || ch.Tombstoned {
		s.mu.Unlock()
		return Channel{}, apperr.New(apperr.Validation, fmt.Sprintf("channel %q does not exist", oldName))
	}
	if existing, exists := s.channels[newName]; exists && !existing.Tombstoned {
		s.mu.Unlock()
		return Channel{}, apperr.New(apperr.Validation, fmt.Sprintf("channel %q already exists", newName))
	}

	p := channelPayload{Op: channelOpRename, Name: oldName, NewName: newName}
	if err := s.write(kindChannel, p); err != nil {
		s.mu.Unlock()
		return Channel{}, err
	}
	s.applyChannelReplay(p)

	for i := range s.messages {
		if s.messages[i].Channel == oldName {
			s.messages[i].Channel = newName
		}
	}

	renamed := *s.channels[newName]
	s.mu.Unlock()

	s.notify(EventChannel, renamed)
	return renamed, nil
}

// DeleteChannel tombstones a mutable channel. Messages already posted to
// it are retained; the channel stops accepting new messages and is
// excluded from ListChannels.
func (s *Store) DeleteChannel(name string) error {
	if err := validate.ChannelMutable(name); err != nil {
		return apperr.Wrap(apperr.Validation, "cannot delete channel", err)
	}

	s.mu.Lock()

	ch, ok := s.channels[name]
	if !ok || ch.Tombstoned {
		s.mu.Unlock()
		return apperr.New(apperr.Validation, fmt.Sprintf("channel %q does not exist", name))
	}

	p := channelPayload{Op: channelOpDelete, Name: name}
	if err := s.write(kindChannel, p); err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyChannelReplay(p)
	deleted := *s.channels[name]
	s.mu.Unlock()

	s.notify(EventChannel, deleted)
	return nil
}

// ListChannels returns all live (non-tombstoned) channels, general first
// then alphabetical.
func (s *Store) ListChannels() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if !ch.Tombstoned {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == validate.DefaultChannel {
			return true
		}
		if out[j].Name == validate.DefaultChannel {
			return false
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Store) applyChannelReplay(p channelPayload) {
	switch p.Op {
	case channelOpCreate:
		s.channels[p.Name] = &Channel{Name: p.Name}
	case channelOpRename:
		ch, ok := s.channels[p.Name]
		if !ok {
			ch = &Channel{}
		}
		delete(s.channels, p.Name)
		ch.Name = p.NewName
		s.channels[p.NewName] = ch
		for i := range s.messages {
			if s.messages[i].Channel == p.Name {
				s.messages[i].Channel = p.NewName
			}
		}
	case channelOpDelete:
		if ch, ok := s.channels[p.Name]; ok {
			ch.Tombstoned = true
		} else {
			s.channels[p.Name] = &Channel{Name: p.Name, Tombstoned: true}
		}
	}
}
