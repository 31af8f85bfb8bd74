package bridge

// Session holds the server-assigned session id and whether the notification
// stream is outstanding. It is owned by the event loop and not synchronized.
type Session struct {
	id           string
	streamActive bool
}

// ID returns the current session id or "" before the server assigned one.
func (s *Session) ID() string {
	return s.id
}

// SetID records id. Empty values are ignored: once assigned, a session is only
// ever replaced by a newer one.
func (s *Session) SetID(id string) bool {
	if id == "" || id == s.id {
		return false
	}
	s.id = id
	return true
}

// StreamActive reports whether a notification stream request is outstanding.
func (s *Session) StreamActive() bool {
	return s.streamActive
}

// SetStreamActive sets the stream flag.
func (s *Session) SetStreamActive(active bool) {
	s.streamActive = active
}
