package balances

// AccountSet is an insertion-ordered set of account identifiers.
// The zero value is ready to use; it is not safe for concurrent use.
type AccountSet struct {
	order []string
	seen  map[string]struct{}
}

// Add appends accounts not seen before, keeping first-occurrence order.
func (s *AccountSet) Add(accounts ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{}, len(accounts))
	}
	for _, a := range accounts {
		if _, ok := s.seen[a]; ok {
			continue
		}
		s.seen[a] = struct{}{}
		s.order = append(s.order, a)
	}
}

// List returns a copy of the accounts in first-occurrence order.
func (s *AccountSet) List() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
