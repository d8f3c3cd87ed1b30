package storage

// PreviewVisible reports whether the named channel's preview should render.
// Channels without a stored preference default to visible.
func (s *Storage) PreviewVisible(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if visible, ok := s.data.PreviewStates[channel]; ok {
		return visible
	}
	return true
}

// SetPreviewVisible persists the visibility preference for one channel.
func (s *Storage) SetPreviewVisible(channel string, visible bool) error {
	return s.SetPreviewsVisible([]string{channel}, visible)
}

// SetPreviewsVisible persists the same visibility preference for a batch of
// channels, used by the toggle-all action.
func (s *Storage) SetPreviewsVisible(channels []string, visible bool) error {
	if len(channels) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	for _, channel := range channels {
		if channel == "" {
			continue
		}
		updated.PreviewStates[channel] = visible
	}

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// PreviewStates returns a copy of every stored visibility preference. Entries
// for channels that no longer exist on the server are retained; that drift is
// acceptable and harmless.
func (s *Storage) PreviewStates() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]bool, len(s.data.PreviewStates))
	for name, visible := range s.data.PreviewStates {
		states[name] = visible
	}
	return states
}
