package gesture

// Matcher looks up bindings in configuration order. It never mutates its specs.
type Matcher struct {
	specs []Spec
}

// NewMatcher creates a matcher over an ordered binding list
func NewMatcher(specs []Spec) *Matcher {
	cp := make([]Spec, len(specs))
	copy(cp, specs)
	return &Matcher{specs: cp}
}

// Specs returns the bindings in match order
func (m *Matcher) Specs() []Spec {
	return m.specs
}

// Match returns the first binding whose trigger accepts the key.
// A DirNone direction never matches.
func (m *Matcher) Match(kind Kind, fingers int, dir Direction, mode Mode) (int, *Spec, bool) {
	if dir == DirNone {
		return -1, nil, false
	}
	for i := range m.specs {
		if m.specs[i].Trigger.Matches(kind, fingers, dir, mode) {
			return i, &m.specs[i], true
		}
	}
	return -1, nil, false
}

// HasContinuous reports whether any continuous binding exists for kind and fingers.
// The pipeline uses it to skip matching on every update when nothing could match.
func (m *Matcher) HasContinuous(kind Kind, fingers int) bool {
	for i := range m.specs {
		t := m.specs[i].Trigger
		if t.Mode == ModeContinuous && t.Kind == kind && t.Fingers == fingers {
			return true
		}
	}
	return false
}
