// Package render is the external-collaborator terminal renderer (spec §1
// "Out of scope... the terminal renderer"; §6 "Diagnosis output (to
// renderer)"). It only formats what the engine hands it; it never
// decides what to analyze.
package render

import (
	"fmt"
	"io"

	"github.com/hooop/vex/internal/diagnosis"
	"github.com/hooop/vex/internal/report"
)

// Renderer writes diagnoses and summary counts to an io.Writer using
// direct fmt.Fprintf calls — no TUI or color library involved.
type Renderer struct {
	Out io.Writer
}

// New builds a Renderer writing to w.
func New(w io.Writer) *Renderer { return &Renderer{Out: w} }

// Summary reports the checker's aggregate counts (spec §8 "Boundary
// behaviors"). The vex command prints it after the engine run, ahead of
// the per-leak diagnoses.
func (r *Renderer) Summary(s report.Summary) {
	fmt.Fprintf(r.Out, "%d loss record(s): %d bytes definitely lost, %d indirectly, %d possibly, %d still reachable\n",
		s.TotalRecords, s.DefinitelyLostBytes, s.IndirectlyLostBytes, s.PossiblyLostBytes, s.StillReachableBytes)
}

// Diagnosis renders one leak diagnosis.
func (r *Renderer) Diagnosis(d diagnosis.LeakDiagnosis) {
	fmt.Fprintf(r.Out, "\n%s at %s:%d in %s (%d bytes)\n", d.Kind, d.File, d.Line, d.Function, d.BytesDirect)
	if len(d.RootsAtLeak) > 0 {
		fmt.Fprintf(r.Out, "  roots at leak: %v\n", d.RootsAtLeak)
	}
	if d.Narrative != "" {
		fmt.Fprintf(r.Out, "  %s\n", d.Narrative)
	}
}

// Inconclusive reports a record the tracker could not resolve, per
// record, non-fatal to the overall run (spec §7 "TrackerInconclusive").
func (r *Renderer) Inconclusive(rec report.LeakRecord, reason string) {
	fmt.Fprintf(r.Out, "\ninconclusive for loss record %d of %d: %s\n", rec.LossRecordIndex, rec.LossRecordTotal, reason)
}

// Error reports a non-fatal per-record TraceError; other records are
// still analyzed (spec §7).
func (r *Renderer) Error(rec report.LeakRecord, err error) {
	fmt.Fprintf(r.Out, "\nerror analyzing loss record %d of %d: %v\n", rec.LossRecordIndex, rec.LossRecordTotal, err)
}
