package debugger

import "testing"

func TestParseFrameLineAt(t *testing.T) {
	fn, file, line, ok := ParseFrameLine("   at 0x4011a6: init (leak.c:1)")
	if !ok {
		t.Fatal("expected ok")
	}
	if fn != "init" || file != "leak.c" || line != 1 {
		t.Fatalf("got (%q, %q, %d)", fn, file, line)
	}
}

func TestParseFrameLineBy(t *testing.T) {
	fn, file, line, ok := ParseFrameLine("   by 0x4011d2: main (leak.c:2)")
	if !ok {
		t.Fatal("expected ok")
	}
	if fn != "main" || file != "leak.c" || line != 2 {
		t.Fatalf("got (%q, %q, %d)", fn, file, line)
	}
}

func TestParseFrameLineMalformed(t *testing.T) {
	cases := []string{
		"",
		"   at 0x4011a6: init",
		"   at 0x4011a6: init (leak.c)",
		"no parens here",
	}
	for _, c := range cases {
		if _, _, _, ok := ParseFrameLine(c); ok {
			t.Fatalf("expected !ok for %q", c)
		}
	}
}

func TestBreakpointCycleToReturnRejectsDoubleCycling(t *testing.T) {
	bp := &Breakpoint{ID: 1, File: "leak.c", Line: 1, Function: "init", AtReturn: true}
	s := &Session{bps: map[int]*Breakpoint{1: bp}}
	if err := s.CycleToReturn(bp, "leak.c", 2); err == nil {
		t.Fatal("expected error cycling an already-cycled breakpoint")
	}
}
