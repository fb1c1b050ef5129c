package classify

import (
	"testing"

	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/trace"
)

func TestConfirmAcceptsMatchingWitnesses(t *testing.T) {
	cases := []struct {
		name string
		rc   ownership.RootCause
	}{
		{"missing free via scope exit", ownership.RootCause{Kind: ownership.MissingFree, WitnessEvent: trace.ScopeExit{}}},
		{"missing free with no witness", ownership.RootCause{Kind: ownership.MissingFree}},
		{"reassignment via assign", ownership.RootCause{Kind: ownership.PathLossByReassignment, WitnessEvent: trace.Assign{}}},
		{"reassignment via return", ownership.RootCause{Kind: ownership.PathLossByReassignment, WitnessEvent: trace.Return{}}},
		{"container freed via free", ownership.RootCause{Kind: ownership.ContainerFreedFirst, WitnessEvent: trace.Free{}}},
	}
	c := &Classifier{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Confirm(tc.rc)
			if err != nil {
				t.Fatalf("Confirm: %v", err)
			}
			if got.Kind != tc.rc.Kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.rc.Kind)
			}
		})
	}
}

func TestConfirmRejectsMismatchedWitnesses(t *testing.T) {
	cases := []struct {
		name string
		rc   ownership.RootCause
	}{
		{"missing free with a free witness", ownership.RootCause{Kind: ownership.MissingFree, WitnessEvent: trace.Free{}}},
		{"reassignment with a free witness", ownership.RootCause{Kind: ownership.PathLossByReassignment, WitnessEvent: trace.Free{}}},
		{"container freed with an assign witness", ownership.RootCause{Kind: ownership.ContainerFreedFirst, WitnessEvent: trace.Assign{}}},
	}
	c := &Classifier{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Confirm(tc.rc)
			inc, ok := err.(*ownership.Inconclusive)
			if !ok || inc.Reason != ownership.ClassifierMismatch {
				t.Fatalf("err = %v, want Inconclusive{ClassifierMismatch}", err)
			}
		})
	}
}
