package engine

import "testing"

func TestOccurrenceTrackerDisambiguatesRepeatedCallSites(t *testing.T) {
	occ := newOccurrenceTracker()
	site := "arr.c:6"
	for want := 1; want <= 5; want++ {
		if got := occ.next(site); got != want {
			t.Fatalf("occurrence %d: got %d, want %d", want, got, want)
		}
	}
	if got := occ.next("other.c:1"); got != 1 {
		t.Fatalf("distinct call site started at %d, want 1", got)
	}
}
