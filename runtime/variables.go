package runtime

// VariableStore holds the run-scoped variable bindings. It is owned by a
// single run and is not safe for concurrent use.
type VariableStore struct {
	values map[string]Value
}

func NewVariableStore() *VariableStore {
	return &VariableStore{
		values: make(map[string]Value),
	}
}

func (s *VariableStore) Set(name string, value Value) {
	s.values[name] = value
}

func (s *VariableStore) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *VariableStore) Delete(name string) {
	delete(s.values, name)
}

// Clear drops every binding.
func (s *VariableStore) Clear() {
	clear(s.values)
}

func (s *VariableStore) Len() int {
	return len(s.values)
}

// Snapshot copies the bindings so they can be reported after the run.
func (s *VariableStore) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
