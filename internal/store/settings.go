package store

import "encoding/json"

// SetSetting durably stores an arbitrary JSON value under key (e.g. an
// agent's active "hat"/persona label).
func (s *Store) SetSetting(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()

	if err := s.write(kindSettings, settingsPayload{Key: key, Value: raw}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings[key] = raw
	s.mu.Unlock()

	s.notify(EventSettings, SettingsUpdate{Key: key, Value: raw})
	return nil
}

// GetSetting returns the raw JSON value for key and whether it was set.
func (s *Store) GetSetting(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok
}
