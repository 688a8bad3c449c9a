package storefront

import "sync"

// SelectionForgetter is the one hook the Store needs into view state: drop
// any reference to a product that no longer exists.
type SelectionForgetter interface {
	Forget(productID string)
}

// Selection tracks which product card is expanded and which is open in the
// editor. It never talks to the network.
type Selection struct {
	mu       sync.Mutex
	expanded string
	editing  string
}

// Toggle expands id, or collapses it when it is already expanded.
func (s *Selection) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded == id {
		s.expanded = ""
		return
	}
	s.expanded = id
}

func (s *Selection) Expanded() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded
}

func (s *Selection) Edit(id string) {
	s.mu.Lock()
	s.editing = id
	s.mu.Unlock()
}

func (s *Selection) Editing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

func (s *Selection) CloseEditor() {
	s.Edit("")
}

func (s *Selection) Forget(productID string) {
	if productID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded == productID {
		s.expanded = ""
	}
	if s.editing == productID {
		s.editing = ""
	}
}
