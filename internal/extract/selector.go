package extract

import (
	"encoding/json"
	"fmt"
)

// Selector is either a single CSS selector or an ordered list of candidate
// selectors tried first to last. The zero value is empty.
type Selector struct {
	values []string
}

// NewSelector builds a single-selector value.
func NewSelector(value string) Selector {
	if value == "" {
		return Selector{}
	}
	return Selector{values: []string{value}}
}

// NewSelectorList builds an ordered candidate list.
func NewSelectorList(values ...string) Selector {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return Selector{values: kept}
}

// IsEmpty reports whether no selector is configured.
func (s Selector) IsEmpty() bool {
	return len(s.values) == 0
}

// Values returns the candidate selectors in priority order.
func (s Selector) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// First returns the highest-priority selector, or "".
func (s Selector) First() string {
	if len(s.values) == 0 {
		return ""
	}
	return s.values[0]
}

// UnmarshalJSON accepts either a string or an array of strings.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = NewSelector(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("selector must be a string or list of strings: %w", err)
	}
	*s = NewSelectorList(list...)
	return nil
}

// MarshalJSON emits a bare string for single selectors and an array otherwise.
func (s Selector) MarshalJSON() ([]byte, error) {
	switch len(s.values) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(s.values[0])
	default:
		return json.Marshal(s.values)
	}
}
