package automation

import (
	"strings"

	"github.com/harms-haus/memoriae/internal/garden/seed"
)

// MaxPressure is the clamp ceiling for accumulated staleness pressure.
const MaxPressure = 100

// ChangeKind classifies one structural change feeding the pressure engine.
type ChangeKind string

const (
	// ChangeCategoryRenamed is a category path rename.
	ChangeCategoryRenamed ChangeKind = "category.renamed"
	// ChangeCategoryRemoved is a category deletion.
	ChangeCategoryRemoved ChangeKind = "category.removed"
	// ChangeCategoryMoved is a category reparenting.
	ChangeCategoryMoved ChangeKind = "category.moved"
	// ChangeCategoryChildAdded is a new category created under an existing one.
	ChangeCategoryChildAdded ChangeKind = "category.child_added"
)

// Change is one structural mutation observed outside the seed's own log.
type Change struct {
	Kind ChangeKind
	// Path is the category path the change touched; for child_added it is
	// the new child's full path.
	Path string
}

// Pressure computes one automation's staleness contribution for a change set
// against a seed's current state. Contributions sum across the set and clamp
// to [0, MaxPressure]; the result is always non-negative.
//
// Hierarchical child_added changes count when the new child's ancestor chain
// relates to the seed's assigned category, not only on an exact path match,
// so adding a subcategory re-pressures seeds filed under the parent.
func Pressure(a Automation, state seed.State, changes []Change) int {
	total := 0
	for _, change := range changes {
		weight := a.PressureWeights[change.Kind]
		if weight <= 0 {
			continue
		}
		if change.Kind == ChangeCategoryChildAdded && !pathsRelated(change.Path, state.Category) {
			continue
		}
		total += weight
	}
	if total > MaxPressure {
		return MaxPressure
	}
	return total
}

// pathsRelated reports whether one slash-separated category path equals the
// other or is its ancestor or descendant. An empty seed category relates to
// nothing.
func pathsRelated(a, b string) bool {
	a = strings.Trim(strings.TrimSpace(a), "/")
	b = strings.Trim(strings.TrimSpace(b), "/")
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
