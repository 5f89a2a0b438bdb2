// Package auth exposes the signed-in user to the sync core.
package auth

import "sync"

// Provider reports the current user. ok is false when nobody is signed in.
type Provider interface {
	CurrentUserID() (id string, ok bool)
}

// Session is a mutable Provider.
type Session struct {
	mu       sync.RWMutex
	userID   string
	onChange []func(userID string)
}

// NewSession returns a session signed in as userID, or signed out when
// userID is empty.
func NewSession(userID string) *Session {
	return &Session{userID: userID}
}

// CurrentUserID implements Provider.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// SignIn sets the current user.
func (s *Session) SignIn(userID string) {
	s.set(userID)
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.set("")
}

// OnChange registers fn to run after every sign-in or sign-out.
func (s *Session) OnChange(fn func(userID string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Session) set(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	hooks := append([]func(string)(nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(userID)
	}
}

// Static is a fixed Provider.
type Static string

// CurrentUserID implements Provider.
func (s Static) CurrentUserID() (string, bool) {
	return string(s), s != ""
}
