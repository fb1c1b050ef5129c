package ownership

import (
	"fmt"

	"github.com/hooop/vex/internal/trace"
)

// LeakKind is the classifier's closed output set (spec §3).
type LeakKind int

const (
	MissingFree LeakKind = iota
	PathLossByReassignment
	ContainerFreedFirst
)

func (k LeakKind) String() string {
	switch k {
	case MissingFree:
		return "MissingFree"
	case PathLossByReassignment:
		return "PathLossByReassignment"
	case ContainerFreedFirst:
		return "ContainerFreedFirst"
	}
	return "Unknown"
}

// ParseLeakKind inverts LeakKind.String, for reading back a diagnosis
// written to CSV/JSON.
func ParseLeakKind(s string) LeakKind {
	switch s {
	case "MissingFree":
		return MissingFree
	case "PathLossByReassignment":
		return PathLossByReassignment
	case "ContainerFreedFirst":
		return ContainerFreedFirst
	}
	return -1
}

// InconclusiveReason names the exact missing precondition that stopped
// analysis short of a RootCause (spec §4.D "Failure").
type InconclusiveReason string

const (
	NoDebugInfo        InconclusiveReason = "NoDebugInfo"
	TraceTruncated     InconclusiveReason = "TraceTruncated"
	OpaqueCritical     InconclusiveReason = "OpaqueCritical"
	ReasonMismatch     InconclusiveReason = "ReasonMismatch"
	ClassifierMismatch InconclusiveReason = "ClassifierMismatch"
)

// Inconclusive reports that the tracker (or classifier) could not produce
// a RootCause, carrying the precondition that failed.
type Inconclusive struct {
	Reason InconclusiveReason
	Detail string
}

func (i *Inconclusive) Error() string {
	if i.Detail == "" {
		return fmt.Sprintf("inconclusive: %s", i.Reason)
	}
	return fmt.Sprintf("inconclusive: %s: %s", i.Reason, i.Detail)
}

// Origin records how a root came to exist (spec §3, Root.origin).
type Origin struct {
	// Allocation is true when the root was born at the allocation itself.
	Allocation bool
	// AliasOf is the access path this root was copied from, when
	// Allocation is false.
	AliasOf AccessPath
}

func allocationOrigin() Origin       { return Origin{Allocation: true} }
func aliasOrigin(of AccessPath) Origin { return Origin{AliasOf: of} }

// Root is one live access path the tracker believes currently reaches the
// tracked allocation (spec §3).
type Root struct {
	Path   AccessPath
	Origin Origin
	// Frame is the id of the tracker frame that owns this root's head
	// variable, or -1 for a caller frame whose Enter was never observed;
	// when that frame unwinds, the root dies.
	Frame int
}

// RootCause is the ownership tracker's sole successful output (spec §3).
type RootCause struct {
	File          string
	Line          int
	Kind          LeakKind
	LastRootsAtLeak []AccessPath
	WitnessEvent  trace.Event
}
