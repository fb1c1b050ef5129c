// Package engine orchestrates the full pipeline: parse the checker
// report, run the dynamic tracer once per executable, then fan out the
// per-allocation ownership analyses concurrently since the tracker is a
// pure function of (LeakRecord, ExecTrace) (spec §5, §2 "System
// overview"). Grounded on conftamer/exec.go's single-dispatch-loop shape,
// generalized from one sequential loop to one goroutine per independent
// record, with no bound on how many run at once — a generalization spec
// §5 explicitly licenses ("leak records may be analyzed concurrently
// across independent tasks").
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hooop/vex/internal/classify"
	"github.com/hooop/vex/internal/config"
	"github.com/hooop/vex/internal/diagnosis"
	"github.com/hooop/vex/internal/llm"
	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/report"
	"github.com/hooop/vex/internal/trace"
)

// Errors surfaced by Run (spec §7).
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

type TraceError struct {
	Record report.LeakRecord
	Err    error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("trace error for loss record %d: %v", e.Record.LossRecordIndex, e.Err)
}
func (e *TraceError) Unwrap() error { return e.Err }

// occurrenceTracker hands out a 1-based occurrence index per distinct
// allocation call-site, so repeated-site allocations (e.g. inside a loop)
// disambiguate correctly (spec §4.D's `Track(rec, occurrence, tr)`).
type occurrenceTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newOccurrenceTracker() *occurrenceTracker {
	return &occurrenceTracker{counts: map[string]int{}}
}

func (o *occurrenceTracker) next(callSite string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[callSite]++
	return o.counts[callSite]
}

// Result is one record's outcome: exactly one of Diagnosis, Inconclusive,
// or Err is set.
type Result struct {
	Record       report.LeakRecord
	Diagnosis    diagnosis.LeakDiagnosis
	Inconclusive *ownership.Inconclusive
	Err          error
}

// Engine wires components A-E behind one entry point.
type Engine struct {
	Cfg        *config.Config
	Tracer     *trace.Tracer
	Classifier *classify.Classifier
	LLM        *llm.Client
}

// New builds an Engine from the given config and tracer. LLM is optional
// (nil disables narrative generation entirely).
func New(cfg *config.Config, tracer *trace.Tracer, llmClient *llm.Client) *Engine {
	return &Engine{Cfg: cfg, Tracer: tracer, Classifier: &classify.Classifier{}, LLM: llmClient}
}

// Run parses checkerReport, runs the tracer once to get a full execution
// trace, then analyzes every deep-analysis-eligible record concurrently.
// It returns one Result per record that reached deep analysis, in no
// particular order (spec §5 "Across traces there is no ordering
// requirement").
func (e *Engine) Run(ctx context.Context, checkerReport string) ([]Result, report.Summary, error) {
	parser := &report.Parser{}
	parsed, err := parser.Parse(checkerReport)
	if err != nil {
		if err == report.ErrEmpty {
			return nil, report.Summary{}, nil
		}
		return nil, report.Summary{}, fmt.Errorf("parsing checker report: %w", err)
	}

	fullTrace, traceErr := e.Tracer.Trace(ctx)
	// A trace-level failure is attached as a TraceError to every record
	// that reached deep analysis; none of them is analyzed against the
	// partial trace.

	var toAnalyze []report.LeakRecord
	for _, rec := range parsed.Records {
		if rec.DeepAnalysis() {
			toAnalyze = append(toAnalyze, rec)
		}
	}

	occ := newOccurrenceTracker()
	results := make([]Result, len(toAnalyze))
	var wg sync.WaitGroup
	for i, rec := range toAnalyze {
		wg.Add(1)
		go func(i int, rec report.LeakRecord) {
			defer wg.Done()
			results[i] = e.analyzeOne(ctx, rec, fullTrace, occ, traceErr)
		}(i, rec)
	}
	wg.Wait()

	return results, parsed.Summary, nil
}

func (e *Engine) analyzeOne(ctx context.Context, rec report.LeakRecord, fullTrace trace.ExecTrace, occ *occurrenceTracker, traceErr error) Result {
	if traceErr != nil {
		return Result{Record: rec, Err: &TraceError{Record: rec, Err: traceErr}}
	}

	site, _ := rec.InnermostFrame()
	callSite := fmt.Sprintf("%s:%d", site.File, site.Line)
	occurrence := occ.next(callSite)

	tracker := &ownership.Tracker{}
	rc, err := tracker.Track(rec, occurrence, fullTrace)
	if err != nil {
		if inc, ok := err.(*ownership.Inconclusive); ok {
			return Result{Record: rec, Inconclusive: inc}
		}
		return Result{Record: rec, Err: err}
	}

	confirmed, err := e.Classifier.Confirm(rc)
	if err != nil {
		if inc, ok := err.(*ownership.Inconclusive); ok {
			return Result{Record: rec, Inconclusive: inc}
		}
		return Result{Record: rec, Err: err}
	}

	d := diagnosis.FromRootCause(rec, confirmed)

	if e.LLM != nil {
		if resp, err := e.LLM.Explain(ctx, llm.Request{
			Kind:        confirmed.Kind.String(),
			Site:        fmt.Sprintf("%s:%d", confirmed.File, confirmed.Line),
			RootsAtLeak: d.RootsAtLeak,
		}); err == nil {
			d.Narrative = resp.Narrative
		}
		// LLMError is non-fatal: the structural diagnosis is still
		// returned without a narrative (spec §7).
	}

	return Result{Record: rec, Diagnosis: d}
}
