package report

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleReport = `==123== HEAP SUMMARY:
==123==     in use at exit: 160 bytes in 2 blocks
==123==   total heap usage: 4 allocs, 2 frees, 1,024 bytes allocated
==123==
==123== 128 bytes in 1 blocks are definitely lost in loss record 1 of 2
==123==    at 0x4846828: malloc (in /usr/lib/valgrind/vgpreload_memcheck.so)
==123==    by 0x109270: init (leak.c:1)
==123==    by 0x1092A0: main (leak.c:2)
==123==
==123== 32 bytes in 1 blocks are possibly lost in loss record 2 of 2
==123==    at 0x4846828: malloc (in /usr/lib/valgrind/vgpreload_memcheck.so)
==123==    by 0x109290: maybe (leak.c:10)
==123==
==123== LEAK SUMMARY:
==123==    definitely lost: 128 bytes in 1 blocks
==123==    indirectly lost: 0 bytes in 0 blocks
==123==      possibly lost: 32 bytes in 1 blocks
==123==    still reachable: 0 bytes in 0 blocks
==123== Reachable blocks (those to which a pointer was found) are not shown.
`

func TestParseDefinitelyLost(t *testing.T) {
	p := &Parser{}
	res, err := p.Parse(sampleReport)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}

	def := res.Records[0]
	if def.CategoryHint != Definitely {
		t.Fatalf("first record hint = %v, want definitely", def.CategoryHint)
	}
	if !def.DeepAnalysis() {
		t.Fatalf("definitely-lost record should be deep-analyzed")
	}
	site, ok := def.InnermostFrame()
	if !ok || site.File != "leak.c" || site.Line != 1 {
		t.Fatalf("innermost frame = %+v, ok=%v", site, ok)
	}

	possibly := res.Records[1]
	if possibly.DeepAnalysis() {
		t.Fatalf("possibly-lost record must not be deep-analyzed")
	}

	if res.Summary.DefinitelyLostBytes != 128 || res.Summary.PossiblyLostBytes != 32 {
		t.Fatalf("summary = %+v", res.Summary)
	}
}

func TestParseEmptyReport(t *testing.T) {
	p := &Parser{}
	_, err := p.Parse("==1== All heap blocks were freed -- no leaks are possible\n")
	if err != ErrEmpty {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestParseNoDebugInfoDropsRecord(t *testing.T) {
	report := `==1== 8 bytes in 1 blocks are definitely lost in loss record 1 of 1
==1==    at 0x4846828: malloc (in /usr/lib/valgrind/vgpreload_memcheck.so)
==1==    by 0x109270: ??? (in /bin/prog)
`
	p := &Parser{}
	res, err := p.Parse(report)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records", len(res.Records))
	}
	if res.Records[0].DropReason != NoDebugInfo {
		t.Fatalf("drop reason = %v, want NoDebugInfo", res.Records[0].DropReason)
	}
	if res.Records[0].DeepAnalysis() {
		t.Fatalf("record with no debug info must not be deep-analyzed")
	}
}

func TestParseOrderingDeterministic(t *testing.T) {
	p := &Parser{}
	r1, err := p.Parse(sampleReport)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := p.Parse(sampleReport)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Fatalf("re-parsing same report changed result (-first +second):\n%s", diff)
	}
	for i := range r1.Records {
		if r1.Records[i].ID != r2.Records[i].ID {
			t.Fatalf("record %d id not stable across parses", i)
		}
	}
}
