package session

import "strings"

const flashPrefix = "_flash:"

// Flash keys used by the login flow.
const (
	FlashSuccess = "success"
	FlashError   = "oauth2"
)

// Flash stores a one-time message under key. It survives exactly one read.
func (s *Session) Flash(key, message string) {
	s.SetValue(flashPrefix+key, message)
}

// PopFlash returns the message stored under key and removes it.
func (s *Session) PopFlash(key string) (string, bool) {
	val, ok := s.Pull(flashPrefix + key)
	if !ok {
		return "", false
	}
	msg, ok := val.(string)
	return msg, ok
}

// Flashes returns and removes every pending flash message.
func (s *Session) Flashes() map[string]string {
	out := make(map[string]string)
	for k, v := range s.Values {
		name, ok := strings.CutPrefix(k, flashPrefix)
		if !ok {
			continue
		}
		if msg, ok := v.(string); ok {
			out[name] = msg
		}
	}
	for k := range out {
		s.DeleteValue(flashPrefix + k)
	}
	return out
}
