package diagnosis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/report"
)

func sampleDiagnosis() LeakDiagnosis {
	return LeakDiagnosis{
		LeakID:        report.NewAllocID("leak.c:1", 0),
		BytesDirect:   128,
		BytesIndirect: 0,
		Kind:          ownership.MissingFree,
		File:          "leak.c",
		Function:      "init",
		Line:          1,
		WitnessLine:   1,
		RootsAtLeak:   []string{"t"},
	}
}

func TestFromRootCause(t *testing.T) {
	rec := report.LeakRecord{
		ID:          report.NewAllocID("leak.c:1", 0),
		BytesDirect: 128,
		AllocStack:  []report.Frame{{Function: "init", File: "leak.c", Line: 1}},
	}
	rc := ownership.RootCause{
		File: "leak.c",
		Line: 1,
		Kind: ownership.MissingFree,
		LastRootsAtLeak: []ownership.AccessPath{ownership.ParseAccessPath("t")},
	}
	d := FromRootCause(rec, rc)
	if d.Function != "init" || d.File != "leak.c" || d.Line != 1 {
		t.Fatalf("got %#v", d)
	}
	if len(d.RootsAtLeak) != 1 || d.RootsAtLeak[0] != "t" {
		t.Fatalf("roots = %v", d.RootsAtLeak)
	}
}

func TestWriteReadCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diag.csv")
	want := []LeakDiagnosis{sampleDiagnosis()}

	if err := WriteCSV(path, want); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d diagnoses, want 1", len(got))
	}
	g := got[0]
	w := want[0]
	if g.Kind != w.Kind || g.File != w.File || g.Line != w.Line || g.BytesDirect != w.BytesDirect {
		t.Fatalf("got %#v, want %#v", g, w)
	}
	if len(g.RootsAtLeak) != 1 || g.RootsAtLeak[0] != "t" {
		t.Fatalf("roots = %v", g.RootsAtLeak)
	}
}

func TestWriteRootsGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roots.gv")
	if err := WriteRootsGraph(path, []LeakDiagnosis{sampleDiagnosis()}); err != nil {
		t.Fatalf("WriteRootsGraph: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty .gv output")
	}
}
