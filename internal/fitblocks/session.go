package fitblocks

import "sync"

// session holds the mutable authentication state shared by all client
// calls. The client runs from multiple goroutines during enrichment
// fan-out, so every access goes through the mutex.
type session struct {
	mu            sync.Mutex
	csrfToken     string
	authenticated bool
	branding      string
}

func (s *session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

func (s *session) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = token
}

func (s *session) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *session) setAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

func (s *session) brandingName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branding
}

func (s *session) setBrandingName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branding = name
}
