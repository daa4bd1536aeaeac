package ws

import "time"

// DefaultLanguage is assumed for rooms that were never created through the
// REST API and so have no persisted language.
const DefaultLanguage = "python"

// roomState is the authoritative in-memory snapshot of a room's buffer. It
// exists independently of any single connection and is guarded by the hub
// lock, never by its own.
type roomState struct {
	code         string
	language     string
	lastActivity time.Time
}

// apply overwrites each field present in the update, last writer wins.
// There is no versioning: two concurrent updates may interleave per field,
// which is the documented best-effort semantics of the relay.
func (s *roomState) apply(p CodeUpdatePayload, now time.Time) {
	if p.Code != nil {
		s.code = *p.Code
	}
	if p.Language != nil {
		s.language = *p.Language
	}
	s.lastActivity = now
}

// touch refreshes the idle clock without mutating content. Cursor traffic
// deliberately does not call this: presence alone never keeps a room alive.
func (s *roomState) touch(now time.Time) {
	s.lastActivity = now
}
