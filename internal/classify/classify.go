// Package classify implements the near-degenerate confirmation pass that
// runs after the ownership tracker: it reads the RootCause the tracker
// already produced and checks the witness event actually backs the kind
// attached to it, guarding against a tracker bug rather than doing any
// analysis of its own (spec §4.E).
package classify

import (
	"fmt"

	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/trace"
)

// Classifier confirms a RootCause's kind against its witness event.
type Classifier struct{}

// Confirm returns rc unchanged when its kind's post-condition holds, or
// an *ownership.Inconclusive{ClassifierMismatch} when it doesn't.
func (c *Classifier) Confirm(rc ownership.RootCause) (ownership.RootCause, error) {
	if ok, reason := postConditionHolds(rc); !ok {
		return ownership.RootCause{}, &ownership.Inconclusive{
			Reason: ownership.ClassifierMismatch,
			Detail: reason,
		}
	}
	return rc, nil
}

func postConditionHolds(rc ownership.RootCause) (bool, string) {
	switch rc.Kind {
	case ownership.MissingFree:
		// The tracker's own discarded-result shortcut (spec §4.D
		// "Initialization": no receiver at all) emits MissingFree with
		// no witness event, never having entered the replay loop; that
		// case trivially satisfies the post-condition.
		if rc.WitnessEvent == nil {
			return true, ""
		}
		if _, ok := rc.WitnessEvent.(trace.ScopeExit); !ok {
			return false, fmt.Sprintf("MissingFree requires a ScopeExit witness, got %T", rc.WitnessEvent)
		}
		return true, ""

	case ownership.PathLossByReassignment:
		switch rc.WitnessEvent.(type) {
		case trace.Assign, trace.Return:
			return true, ""
		default:
			return false, fmt.Sprintf("PathLossByReassignment requires an Assign or non-rebinding Return witness, got %T", rc.WitnessEvent)
		}

	case ownership.ContainerFreedFirst:
		if _, ok := rc.WitnessEvent.(trace.Free); !ok {
			return false, fmt.Sprintf("ContainerFreedFirst requires a Free witness, got %T", rc.WitnessEvent)
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unrecognized leak kind %v", rc.Kind)
	}
}
