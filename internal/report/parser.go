package report

import (
	"bufio"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Required tokens/line shapes per spec §6:
//   "N (D direct, I indirect) bytes in B blocks are definitely lost in loss record K of M"
//   "   at 0x...: fn (file:line)"
//   "   by 0x...: fn (file:line)"
//   "LEAK SUMMARY:" block with per-category totals.
var (
	headerRe = regexp.MustCompile(
		`(?m)^\s*\d*==\d+==\s*(\d+)(?:\s+\((\d+)\s+direct,\s*(\d+)\s+indirect\))?\s+bytes in\s+(\d+)\s+blocks? (?:is|are)\s+(definitely|indirectly|possibly|still reachable)(?:\s+lost)?\s+in loss record\s+(\d+)\s+of\s+(\d+)`)
	frameRe = regexp.MustCompile(
		`^\s*\d*==\d+==\s+(?:at|by)\s+0x[0-9A-Fa-f]+:\s+(\S+)\s+\(([^():]+):(\d+)\)`)
	frameNoSourceRe = regexp.MustCompile(
		`^\s*\d*==\d+==\s+(?:at|by)\s+0x[0-9A-Fa-f]+:\s+(\S+)(?:\s+\(([^)]*)\))?`)
	summaryLineRe = regexp.MustCompile(
		`(?m)^\s*\d*==\d+==\s+(definitely lost|indirectly lost|possibly lost|still reachable):\s+(\d+)\s+bytes`)
	noLeaksRe = regexp.MustCompile(`All heap blocks were freed|no leaks are possible`)
)

// ParseError reports a checker report block that could not be recovered
// after two attempts (spec §4.A "Malformed").
type ParseError struct {
	Block string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed leak block: %v\n%s", e.Err, e.Block)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrEmpty is returned (alongside a zero-value result) when the report
// contains no leaks at all — a normal, non-error outcome per spec §4.A.
var ErrEmpty = fmt.Errorf("report: no leaks found")

// Result is the parser's structured output.
type Result struct {
	Records []LeakRecord
	Summary Summary
}

// Parser turns checker text into Result. Stateless and reusable.
type Parser struct {
	Logger *slog.Logger
}

// Parse consumes the full text of a checker report.
func (p *Parser) Parse(text string) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if noLeaksRe.MatchString(text) {
		return Result{}, ErrEmpty
	}

	var res Result
	res.Summary = parseSummary(text)

	blocks := splitBlocks(text)
	attempts := 0
	for _, block := range blocks {
		if !headerRe.MatchString(block) {
			continue
		}
		rec, err := parseBlock(block)
		if err != nil {
			attempts++
			if attempts > 2 {
				return Result{}, &ParseError{Block: block, Err: err}
			}
			logger.Warn("skipping malformed leak block", "error", err)
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if len(res.Records) == 0 && res.Summary.TotalRecords == 0 {
		return Result{}, ErrEmpty
	}
	return res, nil
}

// splitBlocks partitions the report into per-loss-record chunks, delimited
// by blank lines or a fresh pid-prefixed blank marker line.
func splitBlocks(text string) []string {
	var blocks []string
	var cur strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			blocks = append(blocks, cur.String())
		}
		cur.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		isBlank := trimmed == "" || regexp.MustCompile(`^==\d+==\s*$`).MatchString(trimmed)
		if isBlank {
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	flush()
	return blocks
}

func parseBlock(block string) (LeakRecord, error) {
	m := headerRe.FindStringSubmatch(block)
	if m == nil {
		return LeakRecord{}, fmt.Errorf("no leak header found")
	}

	bytesTotal, _ := strconv.Atoi(m[1])
	direct, indirect := bytesTotal, 0
	if m[2] != "" {
		direct, _ = strconv.Atoi(m[2])
		indirect, _ = strconv.Atoi(m[3])
	}
	blocks, _ := strconv.Atoi(m[4])
	hint := hintFromWord(m[5])
	idx, _ := strconv.Atoi(m[6])
	total, _ := strconv.Atoi(m[7])

	frames := parseFrames(block[strings.Index(block, m[0])+len(m[0]):])

	rec := LeakRecord{
		BytesDirect:     direct,
		BytesIndirect:   indirect,
		Blocks:          blocks,
		LossRecordIndex: idx,
		LossRecordTotal: total,
		AllocStack:      frames,
		CategoryHint:    hint,
	}

	if site, ok := rec.InnermostFrame(); ok {
		rec.ID = NewAllocID(fmt.Sprintf("%s:%d", site.File, site.Line), idx)
	} else {
		rec.ID = NewAllocID("?", idx)
	}

	if rec.CategoryHint == Definitely {
		if site, ok := rec.InnermostFrame(); !ok || !site.KnownLine() {
			rec.DropReason = NoDebugInfo
		}
	}

	return rec, nil
}

// allocatorFunctions are the checker's own allocator entry points: they
// never have user source coordinates and are not part of the ownership
// analysis's notion of "call stack", so they're excluded from AllocStack.
var allocatorFunctions = map[string]bool{
	"malloc": true, "calloc": true, "realloc": true, "free": true,
	"strdup": true, "memcpy": true, "memmove": true, "memset": true,
}

// parseFrames extracts every "at"/"by" stack line in a block, innermost
// first (the order the checker already emits them in), dropping the
// allocator's own frame.
func parseFrames(body string) []Frame {
	var frames []Frame
	for _, line := range strings.Split(body, "\n") {
		if m := frameRe.FindStringSubmatch(line); m != nil {
			if allocatorFunctions[m[1]] {
				continue
			}
			lineNo, _ := strconv.Atoi(m[3])
			frames = append(frames, Frame{Function: m[1], File: m[2], Line: lineNo})
			continue
		}
		if m := frameNoSourceRe.FindStringSubmatch(line); m != nil {
			if allocatorFunctions[m[1]] {
				continue
			}
			frames = append(frames, Frame{Function: m[1], File: "?", Line: 0})
		}
	}
	return frames
}

func parseSummary(text string) Summary {
	var s Summary
	for _, m := range summaryLineRe.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "definitely lost":
			s.DefinitelyLostBytes = n
		case "indirectly lost":
			s.IndirectlyLostBytes = n
		case "possibly lost":
			s.PossiblyLostBytes = n
		case "still reachable":
			s.StillReachableBytes = n
		}
	}
	s.TotalRecords = len(headerRe.FindAllString(text, -1))
	return s
}

func hintFromWord(w string) CategoryHint {
	switch w {
	case "definitely":
		return Definitely
	case "indirectly":
		return Indirectly
	case "possibly":
		return Possibly
	case "still reachable":
		return StillReachable
	}
	return Possibly
}
