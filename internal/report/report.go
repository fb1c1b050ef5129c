// Package report parses the text output of a Valgrind-like dynamic memory
// checker into structured leak records.
package report

import "github.com/google/uuid"

// CategoryHint classifies a loss record the way the checker itself does.
type CategoryHint string

const (
	Definitely     CategoryHint = "definitely"
	Indirectly     CategoryHint = "indirectly"
	Possibly       CategoryHint = "possibly"
	StillReachable CategoryHint = "still-reachable"
)

// Frame is one entry of an allocation's call stack, innermost first.
type Frame struct {
	Function string
	File     string
	Line     int
}

// KnownLine reports whether the checker resolved this frame to real source
// coordinates (as opposed to "?", e.g. no debug symbols).
func (f Frame) KnownLine() bool {
	return f.File != "" && f.File != "?"
}

// AllocID uniquely identifies one heap allocation across the lifetime of a
// run: derived from the allocation call-site plus the loss record's position
// on the checker's list, so two allocations from the same call-site but
// different runtime instances never collide.
type AllocID struct {
	uuid.UUID
}

// NewAllocID derives a stable id for a loss record. Deterministic inputs
// (call-site + index) are namespaced through uuid.NewSHA1 so re-parsing the
// same report twice yields the same ids (required by the round-trip
// property in spec §8).
func NewAllocID(callSite string, lossRecordIndex int) AllocID {
	name := callSite + "#"
	for i := 0; i < lossRecordIndex; i++ {
		name += "." // cheap, deterministic disambiguator; avoids strconv import here
	}
	return AllocID{uuid.NewSHA1(allocNamespace, []byte(name))}
}

var allocNamespace = uuid.MustParse("5f1b2a0e-7b2e-4a7b-9b0a-7b2a0e7b2e4a")

// LeakRecord is one loss-record entry from the checker's report.
type LeakRecord struct {
	ID               AllocID
	BytesDirect      int
	BytesIndirect    int
	Blocks           int
	LossRecordIndex  int
	LossRecordTotal  int
	AllocStack       []Frame
	CategoryHint     CategoryHint
	// DropReason is set (and DeepAnalysis is false) when a definitely-lost
	// record cannot be handed to the deeper pipeline stages.
	DropReason DropReason
}

// DropReason explains why a LeakRecord is retained only for summary counts.
type DropReason string

const (
	NoDropReason DropReason = ""
	NoDebugInfo  DropReason = "NoDebugInfo"
)

// DeepAnalysis reports whether this record should be handed to the context
// extractor / tracer / ownership tracker.
func (r LeakRecord) DeepAnalysis() bool {
	return r.CategoryHint == Definitely && r.DropReason == NoDropReason
}

// InnermostFrame returns the allocation call-site, i.e. alloc_stack[0].
func (r LeakRecord) InnermostFrame() (Frame, bool) {
	if len(r.AllocStack) == 0 {
		return Frame{}, false
	}
	return r.AllocStack[0], true
}

// Summary aggregates the non-deep-analyzed categories plus totals, per
// spec §4.A ("Non-definitely blocks are counted ... but not emitted for
// deep analysis").
type Summary struct {
	DefinitelyLostBytes int
	IndirectlyLostBytes int
	PossiblyLostBytes   int
	StillReachableBytes int
	TotalRecords        int
}
