package analysis

import "encoding/json"

// TitleSet is a set of event titles that remembers insertion order.
type TitleSet struct {
	order []string
	seen  map[string]struct{}
}

func NewTitleSet() *TitleSet {
	return &TitleSet{seen: make(map[string]struct{})}
}

// Add inserts title and reports whether it was new.
func (s *TitleSet) Add(title string) bool {
	if _, ok := s.seen[title]; ok {
		return false
	}
	s.seen[title] = struct{}{}
	s.order = append(s.order, title)
	return true
}

func (s *TitleSet) Contains(title string) bool {
	_, ok := s.seen[title]
	return ok
}

func (s *TitleSet) Len() int {
	return len(s.order)
}

// Titles returns the titles in insertion order.
func (s *TitleSet) Titles() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *TitleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Titles())
}

func (s *TitleSet) MarshalYAML() (interface{}, error) {
	return s.Titles(), nil
}
