package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hooop/vex/internal/diagnosis"
	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/report"
)

func TestDiagnosisIncludesKindFileLine(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Diagnosis(diagnosis.LeakDiagnosis{
		Kind:        ownership.MissingFree,
		File:        "leak.c",
		Line:        1,
		Function:    "init",
		RootsAtLeak: []string{"t"},
	})
	out := buf.String()
	for _, want := range []string{"MissingFree", "leak.c:1", "init", "t"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestSummaryReportsCounts(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Summary(report.Summary{TotalRecords: 3, DefinitelyLostBytes: 100})
	if !strings.Contains(buf.String(), "3 loss record") {
		t.Fatalf("output = %q", buf.String())
	}
}
