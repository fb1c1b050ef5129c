// Package ownership implements the deterministic ownership tracker: given
// one definitely-lost allocation and the linear trace of the execution
// that produced it, it finds the exact event that rendered the
// allocation permanently unreachable (spec §4.D).
package ownership

import (
	set "github.com/hashicorp/go-set"

	"github.com/hooop/vex/internal/report"
	"github.com/hooop/vex/internal/trace"
)

// frame is one activation record on the tracker's shadow call stack
// (glossary "Frame"). id is a unique, ever-increasing identifier — not
// the frame's position in the stack, since stack positions get reused
// once earlier frames pop, which would otherwise let a root outlive its
// real owning frame under a recycled index. callSite is the Enter's
// location — the line in the enclosing caller where this frame's call
// occurs — reused as the attributed line for any RootCause this frame's
// Return produces.
type frame struct {
	id       int
	function string
	callSite trace.Loc
	// opaque frames have no extractable body; only entry/exit bindings
	// are modeled (spec §4.D "Opaque frames").
	opaque bool
}

// Tracker runs the event-handling rules of spec §4.D over one ExecTrace
// for one LeakRecord. It holds no state between calls to Track; each
// call is an independent, stateless invocation over its own trace (spec
// §5 "the tracker is a pure function of (LeakRecord, ExecTrace)").
type Tracker struct{}

// state is the mutable machine the rules in spec §4.D operate on. roots
// is the ordered, authoritative record — insertion order backs
// deterministic LastRootsAtLeak output, and each entry carries the
// Origin/Frame metadata a bare set can't hold. live mirrors the same
// path set for O(1) membership tests — every Free and reassignment
// check is first and foremost a membership question.
type state struct {
	roots  []Root
	live   *set.Set[AccessPath]
	freed  bool
	stack  []frame
	nextID int
	// cause is set exactly once, the first event that empties roots
	// without freed becoming true (spec I2: "once emitted, later events
	// do not overwrite it").
	cause *RootCause
	done  bool
}

// addRoot appends r to the ordered root list and the membership index in
// lockstep; every place a root comes into existence goes through here.
func (s *state) addRoot(r Root) {
	s.roots = append(s.roots, r)
	s.live.Insert(r.Path)
}

func (s *state) currentFrame() int { return s.stack[len(s.stack)-1].id }

func (s *state) pushFrame(f frame) int {
	f.id = s.nextID
	s.nextID++
	s.stack = append(s.stack, f)
	return f.id
}

func (s *state) popFrame() {
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *state) rootsWithPrefix(p AccessPath) []int {
	var idx []int
	for i, r := range s.roots {
		if r.Path.HasPrefix(p) {
			idx = append(idx, i)
		}
	}
	return idx
}

// findRoot answers the membership question against live (the point of
// keeping it) and then recovers the metadata slot by a linear scan — the
// tracker's root sets stay small enough (a handful of live paths at any
// instant) that this costs nothing in practice, while every *rejected*
// lookup (the common case: most paths touched by a trace event are not
// currently roots) short-circuits on the set instead of scanning.
func (s *state) findRoot(p AccessPath) (int, bool) {
	if !s.live.Contains(p) {
		return -1, false
	}
	for i, r := range s.roots {
		if r.Path.Equal(p) {
			return i, true
		}
	}
	return -1, false
}

func (s *state) removeIndices(idx []int) {
	if len(idx) == 0 {
		return
	}
	kill := make(map[int]bool, len(idx))
	for _, i := range idx {
		kill[i] = true
	}
	var out []Root
	for i, r := range s.roots {
		if kill[i] {
			s.live.Remove(r.Path)
			continue
		}
		out = append(out, r)
	}
	s.roots = out
}

func (s *state) removeFrameScoped(frameIdx int) {
	var out []Root
	for _, r := range s.roots {
		if r.Frame == frameIdx {
			s.live.Remove(r.Path)
			continue
		}
		out = append(out, r)
	}
	s.roots = out
}

// emit sets cause, respecting I2: the first cause wins.
func (s *state) emit(kind LeakKind, loc trace.Loc, witness trace.Event, roots []AccessPath) {
	if s.cause != nil || s.freed {
		return
	}
	s.cause = &RootCause{
		File:            loc.File,
		Line:            loc.Line,
		Kind:            kind,
		LastRootsAtLeak: roots,
		WitnessEvent:    witness,
	}
	s.done = true
}

// emitIfEmpty emits kind at loc, attributing lost as the roots that just
// died, iff R is now empty and the allocation was never freed (the
// recurring guard throughout spec §4.D's rules).
func (s *state) emitIfEmpty(kind LeakKind, loc trace.Loc, witness trace.Event, lost []AccessPath) {
	if len(s.roots) != 0 {
		return
	}
	s.emit(kind, loc, witness, lost)
}

// Track runs the full rule set of spec §4.D and returns a RootCause or
// an *Inconclusive error. occurrence is the 1-based count of the site's
// Enter events in the trace that identifies this allocation's runtime
// instance — needed because a call site inside a loop (scenario: array
// partial cleanup) produces one Enter per iteration, all at the same
// file:line; the caller picks which occurrence this LeakRecord's runtime
// instance corresponds to (the engine numbers the deep-analysis records
// that share an allocation call site 1, 2, ... in turn).
func (t *Tracker) Track(rec report.LeakRecord, occurrence int, tr trace.ExecTrace) (RootCause, error) {
	if !rec.DeepAnalysis() {
		return RootCause{}, &Inconclusive{Reason: NoDebugInfo, Detail: "record not eligible for deep analysis"}
	}
	site, ok := rec.InnermostFrame()
	if !ok {
		return RootCause{}, &Inconclusive{Reason: NoDebugInfo, Detail: "no allocation call site"}
	}
	if occurrence < 1 {
		occurrence = 1
	}

	events := trace.Flatten(tr.Events)

	allocIdx, err := findAllocationEnter(events, site, occurrence)
	if err != nil {
		return RootCause{}, err
	}

	s := &state{live: set.New[AccessPath](0)}
	s.pushFrame(frame{
		function: site.Function,
		callSite: trace.Loc{File: site.File, Line: site.Line},
	})

	receiver, hasReceiver, retIdx := findReceiver(events, allocIdx)
	if !hasReceiver {
		return RootCause{File: site.File, Line: site.Line, Kind: MissingFree}, nil
	}
	s.addRoot(Root{
		Path:   ParseAccessPath(receiver),
		Origin: allocationOrigin(),
		Frame:  s.currentFrame(),
	})

	// The allocator's own Enter/Return pair is consumed above purely to
	// seed R; resume replay just past its Return so handleReturn doesn't
	// mistake it for a return out of the allocating function itself.
	for i := retIdx + 1; i < len(events) && !s.done; i++ {
		applyEvent(s, events[i])
	}

	switch {
	case s.cause != nil:
		return *s.cause, nil
	case s.freed:
		return RootCause{}, &Inconclusive{Reason: ReasonMismatch, Detail: "trace frees the allocation; contradicts a definitely-lost report"}
	default:
		return RootCause{}, &Inconclusive{Reason: TraceTruncated, Detail: "trace ended without emptying roots or freeing the allocation"}
	}
}

func findAllocationEnter(events []trace.Event, site report.Frame, occurrence int) (int, error) {
	seen := 0
	for i, e := range events {
		enter, ok := e.(trace.Enter)
		if !ok {
			continue
		}
		if enter.Loc.File != site.File || enter.Loc.Line != site.Line {
			continue
		}
		seen++
		if seen == occurrence {
			return i, nil
		}
	}
	return 0, &Inconclusive{Reason: TraceTruncated, Detail: "allocation call site not found in trace"}
}

// findReceiver locates the matching Return for the allocation's Enter and
// reports its caller-side receiver, if any (spec §4.D "Initialization"),
// along with that Return's index in events.
func findReceiver(events []trace.Event, allocIdx int) (string, bool, int) {
	depth := 0
	for i := allocIdx; i < len(events); i++ {
		switch e := events[i].(type) {
		case trace.Enter:
			depth++
		case trace.Return:
			depth--
			if depth == 0 {
				return e.ReturnHolder, e.HasHolder && e.ReturnHolder != "", i
			}
		}
	}
	return "", false, len(events) - 1
}

// applyEvent dispatches one trace event per the rules of spec §4.D.
func applyEvent(s *state, e trace.Event) {
	switch ev := e.(type) {
	case trace.Enter:
		handleEnter(s, ev)
	case trace.Return:
		handleReturn(s, ev)
	case trace.Assign:
		handleAssign(s, ev)
	case trace.Alias:
		handleAlias(s, ev)
	case trace.Free:
		handleFree(s, ev)
	case trace.ScopeExit:
		handleScopeExit(s, ev)
	case trace.Cond, trace.LoopIter:
		// structural only; LoopIter bodies are already flattened inline
		// by trace.Flatten, so their inner events are visited directly.
	}
}

func handleEnter(s *state, e trace.Enter) {
	newFrame := s.pushFrame(frame{function: e.Function, callSite: e.Loc, opaque: e.Opaque})
	for param, callerExpr := range e.ArgBindings {
		src := ParseAccessPath(callerExpr)
		paramPath := ParseAccessPath(param)
		for _, r := range existingRootsSnapshot(s) {
			if !r.Path.HasPrefix(src) {
				continue
			}
			s.addRoot(Root{
				Path:   r.Path.WithSuffixOf(src, paramPath),
				Origin: aliasOrigin(r.Path),
				Frame:  newFrame,
			})
		}
	}
}

// existingRootsSnapshot copies the current root set so a binding loop
// can append new roots without its range seeing them.
func existingRootsSnapshot(s *state) []Root {
	out := make([]Root, len(s.roots))
	copy(out, s.roots)
	return out
}

func handleReturn(s *state, e trace.Return) {
	// calleeFrame identifies the frame this Return unwinds. When the
	// stack is empty, this Return unwinds a frame that was already open
	// when tracking began (an enclosing caller of the allocation site we
	// never saw the Enter for) — its roots carry the virtualFrame
	// sentinel rather than a pushed frame's id, and it's treated as
	// transparent since no opacity information was ever observed for it.
	const virtualFrame = -1
	calleeFrame := virtualFrame
	opaque := false
	callSite := e.Loc
	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		calleeFrame = top.id
		opaque = top.opaque
		callSite = top.callSite
	}

	retExpr := ParseAccessPath(e.ReturnExpr)
	var matched AccessPath
	namesRoot := false
	if retExpr.Valid() {
		for _, r := range s.roots {
			if r.Frame != calleeFrame {
				continue
			}
			// retExpr names the root directly, or the root is reachable by
			// extending retExpr with further segments (returning `p` also
			// returns everything hanging off `p`, e.g. `p->v`).
			if r.Path.Equal(retExpr) || r.Path.HasPrefix(retExpr) {
				namesRoot = true
				matched = r.Path
				break
			}
		}
	}

	if len(s.stack) > 0 {
		s.popFrame()
	}
	callerFrame := virtualFrame
	if len(s.stack) > 0 {
		callerFrame = s.currentFrame()
	}

	// Only a genuinely pushed frame owns a real scope boundary: its
	// roots die, wholesale, the instant it unwinds. The virtual frame is
	// a transparent stand-in for every not-yet-observed ancestor still on
	// the real call stack, so a Return attributed to it never scopes
	// anything away on its own — an ancestor's locals only die when an
	// explicit ScopeExit says so (spec §4.D "Opaque frames" collapses
	// unseen callers without inventing scope boundaries for them).
	var dying []AccessPath
	if calleeFrame != virtualFrame {
		for _, r := range s.roots {
			if r.Frame == calleeFrame {
				dying = append(dying, r.Path)
			}
		}
		s.removeFrameScoped(calleeFrame)
	}

	if namesRoot && e.HasHolder && e.ReturnHolder != "" {
		holder := ParseAccessPath(e.ReturnHolder)
		// The matched root is being renamed into the caller's holder; it
		// no longer exists under its old name regardless of which frame
		// it lived in (it may already be gone, if calleeFrame was real
		// and removeFrameScoped just swept it).
		if idx, ok := s.findRoot(matched); ok {
			s.removeIndices([]int{idx})
		}
		// The holder may already name an unrelated root in the caller's
		// scope (e.g. `p = some_other_call();` reusing a variable); that
		// prior binding is overwritten by this assignment.
		if idx, ok := s.findRoot(holder); ok {
			s.removeIndices([]int{idx})
		}
		s.addRoot(Root{
			Path:   matched.WithSuffixOf(retExpr, holder),
			Origin: aliasOrigin(matched),
			Frame:  callerFrame,
		})
		return
	}

	if len(s.roots) == 0 && !s.freed {
		kind := MissingFree
		if namesRoot || opaque {
			kind = PathLossByReassignment
		}
		s.emitIfEmpty(kind, callSite, e, dying)
	}

	// A Return that doesn't rebind a callee-owned root is, from the
	// caller's perspective, still `holder = <unrelated value>;` — apply
	// Assign's overwrite rule against whatever root ReturnHolder already
	// names, exactly as if it were a plain Assign (spec §4.D Assign rule).
	if e.HasHolder && e.ReturnHolder != "" {
		holder := ParseAccessPath(e.ReturnHolder)
		if idx, ok := s.findRoot(holder); ok {
			lost := []AccessPath{s.roots[idx].Path}
			s.removeIndices([]int{idx})
			s.emitIfEmpty(PathLossByReassignment, callSite, e, lost)
			return
		}
		prefixed := s.rootsWithPrefix(holder)
		if len(prefixed) > 0 {
			lost := make([]AccessPath, len(prefixed))
			for i, idx := range prefixed {
				lost[i] = s.roots[idx].Path
			}
			s.removeIndices(prefixed)
			s.emitIfEmpty(PathLossByReassignment, callSite, e, lost)
		}
	}
}

// retarget rewrites the root at idx to a new path/origin, keeping live in
// sync — the in-place counterpart to addRoot/removeIndices.
func (s *state) retarget(idx int, newPath AccessPath, origin Origin) {
	s.live.Remove(s.roots[idx].Path)
	s.roots[idx].Path = newPath
	s.roots[idx].Origin = origin
	s.live.Insert(newPath)
}

func handleAssign(s *state, e trace.Assign) {
	lhs := ParseAccessPath(e.LHS)

	if idx, ok := s.findRoot(lhs); ok {
		if resolvesToAllocation(s, e.RHS) {
			s.retarget(idx, ParseAccessPath(e.RHS), allocationOrigin())
			return
		}
		lost := []AccessPath{s.roots[idx].Path}
		s.removeIndices([]int{idx})
		s.emitIfEmpty(PathLossByReassignment, e.Loc, e, lost)
		return
	}

	prefixed := s.rootsWithPrefix(lhs)
	if len(prefixed) > 0 {
		if resolvesToAllocation(s, e.RHS) {
			newPrefix := ParseAccessPath(e.RHS)
			for _, i := range prefixed {
				s.retarget(i, s.roots[i].Path.WithSuffixOf(lhs, newPrefix), s.roots[i].Origin)
			}
			return
		}
		lost := make([]AccessPath, len(prefixed))
		for i, idx := range prefixed {
			lost[i] = s.roots[idx].Path
		}
		s.removeIndices(prefixed)
		s.emitIfEmpty(PathLossByReassignment, e.Loc, e, lost)
		return
	}
	// lhs unrelated to any root: no change.
}

func resolvesToAllocation(s *state, rhsExpr string) bool {
	if IsNullLiteral(rhsExpr) {
		return false
	}
	rhs := ParseAccessPath(rhsExpr)
	if !rhs.Valid() {
		return false
	}
	_, ok := s.findRoot(rhs)
	return ok
}

func handleAlias(s *state, e trace.Alias) {
	rhs := ParseAccessPath(e.RHS)
	if src, ok := s.findRoot(rhs); ok {
		s.addRoot(Root{
			Path:   ParseAccessPath(e.LHS),
			Origin: aliasOrigin(rhs),
			Frame:  s.roots[src].Frame,
		})
	}
}

func handleFree(s *state, e trace.Free) {
	if s.cause != nil || s.freed {
		return
	}
	target := ParseAccessPath(e.ArgumentExpr)

	// expr resolves to the allocation directly when it exactly names an
	// existing root (spec §4.D Free rule, "not merely a reachable
	// sub-field"); origin provenance doesn't matter here, only whether
	// the path itself is currently tracked as reaching the allocation.
	if _, ok := s.findRoot(target); ok {
		s.freed = true
		return
	}

	var transiting []int
	for i, r := range s.roots {
		if target.StrictPrefixOf(r.Path) {
			transiting = append(transiting, i)
		}
	}
	if len(transiting) == 0 {
		return
	}
	lost := make([]AccessPath, len(transiting))
	for i, idx := range transiting {
		lost[i] = s.roots[idx].Path
	}
	s.removeIndices(transiting)

	if len(s.roots) == 0 && !s.freed {
		s.emit(ContainerFreedFirst, e.Loc, e, lost)
	}
}

func handleScopeExit(s *state, e trace.ScopeExit) {
	if s.cause != nil || s.freed {
		return
	}
	dying := make(map[string]bool, len(e.BindingsDying))
	for _, n := range e.BindingsDying {
		dying[n] = true
	}
	var idx []int
	for i, r := range s.roots {
		if dying[r.Path.Head()] {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}
	lost := make([]AccessPath, len(idx))
	for i, j := range idx {
		lost[i] = s.roots[j].Path
	}
	s.removeIndices(idx)
	s.emitIfEmpty(MissingFree, e.Loc, e, lost)
}
