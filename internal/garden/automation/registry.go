package automation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateAutomation indicates two registered automations share an id.
var ErrDuplicateAutomation = errors.New("duplicate automation id")

// Registry is an explicitly constructed automation catalog. It is immutable
// after construction and safe for concurrent readers.
type Registry struct {
	order []string
	byID  map[string]Automation
}

// NewRegistry builds a catalog from the given automations, preserving
// registration order for fan-out.
func NewRegistry(automations ...Automation) (*Registry, error) {
	r := &Registry{byID: make(map[string]Automation, len(automations))}
	for _, a := range automations {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, errors.New("automation id is required")
		}
		if _, exists := r.byID[a.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAutomation, a.ID)
		}
		r.byID[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	return r, nil
}

// Enabled returns the enabled automations in registration order.
func (r *Registry) Enabled() []Automation {
	if r == nil {
		return nil
	}
	var out []Automation
	for _, automationID := range r.order {
		if a := r.byID[automationID]; a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// ByID looks up one automation. A missing id is a caller-visible miss, not
// an error.
func (r *Registry) ByID(automationID string) (Automation, bool) {
	if r == nil {
		return Automation{}, false
	}
	a, ok := r.byID[strings.TrimSpace(automationID)]
	return a, ok
}
