package ownership

import (
	"os"
	"strings"
	"testing"

	"github.com/hooop/vex/internal/report"
	"github.com/hooop/vex/internal/trace"
)

// TestTrackEndToEndFromClassifiedSource drives Track on a trace built the
// way the real tracer builds one: trace.ClassifyLine decides, per source
// line, what a plain statement looks like, while allocation and call
// lines get the Enter/Return treatment ClassifyLine alone never produces
// — that translation has to happen somewhere, and this test is the guard
// that it still does. It replays testdata/leak.c's init() exactly as
// TestScopeLeak's hand-written trace does, so a regression here would
// also break that test's assumptions.
func TestTrackEndToEndFromClassifiedSource(t *testing.T) {
	src, err := os.ReadFile("../../testdata/leak.c")
	if err != nil {
		t.Fatalf("reading testdata: %v", err)
	}
	lines := strings.Split(string(src), "\n")

	allocLine, strcpyLine, closeLine := 5, 6, 7
	mallocText := lines[allocLine-1]
	strcpyText := lines[strcpyLine-1]

	// Line 5: "char *t = malloc(128);" — ClassifyLine reports the
	// allocation callee so the tracer can synthesize Enter/Return instead
	// of stepping into a function with no line-level debug info.
	assignEvents, callee, isReturn := trace.ClassifyLine(mallocText, "leak.c", allocLine)
	if isReturn {
		t.Fatalf("line %d misclassified as return", allocLine)
	}
	if callee != "malloc" {
		t.Fatalf("callee = %q, want malloc", callee)
	}
	assign, ok := assignEvents[0].(trace.Assign)
	if !ok || assign.LHS != "t" || !assign.IsDeclaration {
		t.Fatalf("got %#v", assignEvents[0])
	}

	// Line 6: "strcpy(t, \"x\");" — a bare call with no assignment; the
	// tracer pushes an opaque frame for it.
	_, strcpyCallee, isReturn2 := trace.ClassifyLine(strcpyText, "leak.c", strcpyLine)
	if isReturn2 || strcpyCallee != "strcpy" {
		t.Fatalf("line %d: callee=%q isReturn=%v, want strcpy/false", strcpyLine, strcpyCallee, isReturn2)
	}

	events := []trace.Event{
		trace.Enter{Function: "malloc", Loc: trace.Loc{File: "leak.c", Line: allocLine}},
		trace.Return{Function: "malloc", Loc: trace.Loc{File: "leak.c", Line: allocLine}, ReturnHolder: assign.LHS, HasHolder: true},
		trace.Enter{Function: strcpyCallee, Loc: trace.Loc{File: "leak.c", Line: strcpyLine}, ArgBindings: map[string]string{"arg0": assign.LHS, "arg1": "\"x\""}, Opaque: true},
		trace.Return{Function: strcpyCallee, Loc: trace.Loc{File: "leak.c", Line: strcpyLine}},
		trace.ScopeExit{Loc: trace.Loc{File: "leak.c", Line: closeLine}, BindingsDying: []string{assign.LHS}},
	}

	rec := report.LeakRecord{
		CategoryHint: report.Definitely,
		AllocStack:   []report.Frame{{Function: "malloc", File: "leak.c", Line: allocLine}},
	}
	tr := &Tracker{}
	rc, err := tr.Track(rec, 1, trace.ExecTrace{Events: events})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if rc.Kind != MissingFree {
		t.Fatalf("kind = %v, want MissingFree", rc.Kind)
	}
	if rc.Line != closeLine || rc.File != "leak.c" {
		t.Fatalf("site = %s:%d, want leak.c:%d", rc.File, rc.Line, closeLine)
	}
	if !hasRoot(rc.LastRootsAtLeak, "t") {
		t.Fatalf("roots-at-leak = %v, want {t}", rc.LastRootsAtLeak)
	}
}
