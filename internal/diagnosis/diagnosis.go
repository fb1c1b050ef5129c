// Package diagnosis assembles the final LeakDiagnosis records the engine
// hands to the renderer and the optional LLM collaborator, and writes
// them to durable CSV/graph artifacts (spec §6 "Diagnosis output").
package diagnosis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hooop/vex/internal/ownership"
	"github.com/hooop/vex/internal/report"
)

// LeakDiagnosis is the structured record forwarded to the renderer:
// `{leak_id, bytes, kind, site, witness_line, roots_at_leak, narrative}`
// (spec §6).
type LeakDiagnosis struct {
	LeakID       report.AllocID      `json:"leak_id"`
	BytesDirect  int                 `json:"bytes_direct"`
	BytesIndirect int                `json:"bytes_indirect"`
	Kind         ownership.LeakKind  `json:"kind"`
	File         string              `json:"file"`
	Function     string              `json:"function"`
	Line         int                 `json:"line"`
	WitnessLine  int                 `json:"witness_line"`
	RootsAtLeak  []string            `json:"roots_at_leak"`
	// Narrative is the LLM's prose explanation. Empty when the LLM
	// collaborator was not invoked or failed (spec §7 "LLMError":
	// "Narrative omitted; structural diagnosis still printed").
	Narrative string `json:"narrative,omitempty"`
}

// FromRootCause builds a LeakDiagnosis from a LeakRecord and the
// RootCause the tracker (and classifier) agreed on. The narrative is
// filled in later, if at all, once the LLM collaborator responds.
func FromRootCause(rec report.LeakRecord, rc ownership.RootCause) LeakDiagnosis {
	function := ""
	if frame, ok := rec.InnermostFrame(); ok {
		function = frame.Function
	}
	roots := make([]string, 0, len(rc.LastRootsAtLeak))
	for _, r := range rc.LastRootsAtLeak {
		roots = append(roots, r.String())
	}
	witnessLine := 0
	if rc.WitnessEvent != nil {
		witnessLine = rc.Line
	}
	return LeakDiagnosis{
		LeakID:        rec.ID,
		BytesDirect:   rec.BytesDirect,
		BytesIndirect: rec.BytesIndirect,
		Kind:          rc.Kind,
		File:          rc.File,
		Function:      function,
		Line:          rc.Line,
		WitnessLine:   witnessLine,
		RootsAtLeak:   roots,
	}
}

// WriteCSV writes diagnoses to filename, one row per diagnosis: a small
// fixed header plus a JSON-encoded column for the nested roots-at-leak
// list.
func WriteCSV(filename string, diags []LeakDiagnosis) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"LeakID", "Kind", "File", "Line", "BytesDirect", "BytesIndirect", "RootsAtLeak", "Narrative"}); err != nil {
		return err
	}

	for _, d := range diags {
		roots, err := json.Marshal(d.RootsAtLeak)
		if err != nil {
			return fmt.Errorf("diagnosis: marshaling roots for %v: %w", d.LeakID, err)
		}
		row := []string{
			d.LeakID.String(),
			d.Kind.String(),
			d.File,
			fmt.Sprintf("%d", d.Line),
			fmt.Sprintf("%d", d.BytesDirect),
			fmt.Sprintf("%d", d.BytesIndirect),
			string(roots),
			d.Narrative,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadCSV reads diagnoses back from a file written by WriteCSV, used by
// tests and by any downstream tool that wants to re-render a prior run.
func ReadCSV(filename string) ([]LeakDiagnosis, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	if _, err := r.Read(); err != nil { // header
		return nil, err
	}

	var out []LeakDiagnosis
	for {
		row, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		var roots []string
		if err := json.Unmarshal([]byte(row[6]), &roots); err != nil {
			return nil, fmt.Errorf("diagnosis: unmarshaling roots: %w", err)
		}
		id, err := uuid.Parse(row[0])
		if err != nil {
			return nil, fmt.Errorf("diagnosis: parsing leak id: %w", err)
		}
		var line, bd, bi int
		fmt.Sscanf(row[3], "%d", &line)
		fmt.Sscanf(row[4], "%d", &bd)
		fmt.Sscanf(row[5], "%d", &bi)
		out = append(out, LeakDiagnosis{
			LeakID:        report.AllocID{UUID: id},
			Kind:          ownership.ParseLeakKind(row[1]),
			File:          row[2],
			Line:          line,
			BytesDirect:   bd,
			BytesIndirect: bi,
			RootsAtLeak:   roots,
			Narrative:     row[7],
		})
	}
	return out, nil
}
