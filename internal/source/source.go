// Package source extracts complete C function bodies from source files
// given a containing line number (the "context extractor", spec §4.B).
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Line is one source line with its 1-based file line number.
type Line struct {
	No   int
	Text string
}

// FunctionView is the enclosing function body for a given (file, line).
type FunctionView struct {
	Signature string
	File      string
	StartLine int
	EndLine   int
	BodyLines []Line
}

// ErrUnresolved reports that the containing function could not be isolated
// (unbalanced braces, non-UTF-8 bytes outside literals/comments, or file
// not found). The tracker treats the corresponding frame as opaque.
var ErrUnresolved = errors.New("source: could not resolve containing function")

// Extractor isolates function bodies by brace-balanced scanning. It does
// not parse C types; it only partitions the file into top-level functions.
type Extractor struct {
	// SearchRoots are directories doublestar walks when a frame's exact
	// file path doesn't exist on disk (out-of-tree builds, stripped
	// paths). Optional.
	SearchRoots []string
}

// View returns the FunctionView whose body strictly contains line.
func (e *Extractor) View(file string, line int) (FunctionView, error) {
	path, err := e.resolvePath(file)
	if err != nil {
		return FunctionView{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return FunctionView{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if !validOutsideLiterals(raw) {
		return FunctionView{}, fmt.Errorf("%w: non-UTF-8 bytes outside string/char literals", ErrUnresolved)
	}

	lines := splitLines(string(raw))
	if line < 1 || line > len(lines) {
		return FunctionView{}, fmt.Errorf("%w: line %d out of range", ErrUnresolved, line)
	}

	start, sig, err := findFunctionStart(lines, line)
	if err != nil {
		return FunctionView{}, err
	}
	end, err := findFunctionEnd(lines, start)
	if err != nil {
		return FunctionView{}, err
	}
	if line-1 < start || line-1 > end {
		return FunctionView{}, fmt.Errorf("%w: line %d not within [%d,%d]", ErrUnresolved, line, start+1, end+1)
	}

	body := make([]Line, 0, end-start+1)
	for i := start; i <= end; i++ {
		body = append(body, Line{No: i + 1, Text: lines[i]})
	}

	return FunctionView{
		Signature: sig,
		File:      path,
		StartLine: start + 1,
		EndLine:   end + 1,
		BodyLines: body,
	}, nil
}

func (e *Extractor) resolvePath(file string) (string, error) {
	if _, err := os.Stat(file); err == nil {
		return file, nil
	}
	base := filepath.Base(file)
	for _, root := range e.SearchRoots {
		matches, err := doublestar.Glob(os.DirFS(root), "**/"+base)
		if err != nil || len(matches) == 0 {
			continue
		}
		return filepath.Join(root, matches[0]), nil
	}
	return "", fmt.Errorf("file %q not found under search roots", file)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// findFunctionStart walks backward from the line containing lineNo to find
// the top-level `ident(...) {` that opens the enclosing function, tolerant
// of a signature split across multiple lines.
func findFunctionStart(lines []string, lineNo int) (int, string, error) {
	for i := lineNo - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(stripCommentsAndLiterals(lines[i]))
		if trimmed == "" {
			continue
		}
		if looksLikeFunctionOpener(lines, i) {
			sigStart := i
			for sigStart > 0 && !endsStatementOrBlock(lines[sigStart-1]) {
				sigStart--
			}
			sig := strings.TrimSpace(strings.Join(lines[sigStart:i+1], " "))
			sig = strings.TrimSuffix(sig, "{")
			sig = strings.TrimSpace(sig)
			return sigStart, sig, nil
		}
	}
	return 0, "", fmt.Errorf("%w: no enclosing function found above line %d", ErrUnresolved, lineNo)
}

// looksLikeFunctionOpener reports whether the (possibly multi-line)
// statement ending at line i has the shape `head(...) {`, where head does
// not end in an if/for/while/switch/do/else keyword. A line that does not
// end in `{` qualifies only when it starts at column 0 and its first `{`
// follows the `)`, i.e. a whole function written on one line.
func looksLikeFunctionOpener(lines []string, i int) bool {
	clean := stripCommentsAndLiterals(lines[i])
	trimmed := strings.TrimSpace(clean)
	if !strings.HasSuffix(trimmed, "{") {
		brace := strings.Index(clean, "{")
		if brace < 0 || clean[0] == ' ' || clean[0] == '\t' {
			return false
		}
		clean = clean[:brace]
	}
	// Reassemble back to the start of the statement (params may span lines).
	j := i
	joined := clean
	for j > 0 && !strings.Contains(joined, "(") {
		j--
		joined = stripCommentsAndLiterals(lines[j]) + " " + joined
	}
	joined = strings.TrimSpace(joined)
	joined = strings.TrimSuffix(joined, "{")
	joined = strings.TrimSpace(joined)

	if !strings.HasSuffix(joined, ")") {
		return false
	}
	head := joined[:strings.Index(joined, "(")]
	head = strings.TrimSpace(head)
	if head == "" {
		return false
	}
	for _, kw := range []string{"if", "for", "while", "switch", "do", "else"} {
		fields := strings.Fields(head)
		if len(fields) > 0 && fields[len(fields)-1] == kw {
			return false
		}
	}
	return true
}

func endsStatementOrBlock(line string) bool {
	t := strings.TrimSpace(stripCommentsAndLiterals(line))
	if t == "" {
		return true
	}
	return strings.HasSuffix(t, ";") || strings.HasSuffix(t, "}") || strings.HasSuffix(t, "{")
}

// findFunctionEnd counts braces from start until they balance to zero.
func findFunctionEnd(lines []string, start int) (int, error) {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		clean := stripCommentsAndLiterals(lines[i])
		for _, c := range clean {
			switch c {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					return i, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("%w: unbalanced braces from line %d", ErrUnresolved, start+1)
}


// stripCommentsAndLiterals blanks out the contents of string/char literals
// and line comments so brace-counting never misfires on `"{"` or `// {`.
// Block comments that open and close on this line are also blanked; a
// block comment left open blanks the rest of this line only. No state is
// carried across lines, so the continuation lines of a multi-line block
// comment are scanned as code, here and in validOutsideLiterals.
func stripCommentsAndLiterals(line string) string {
	var b strings.Builder
	inStr, inChar := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inStr:
			b.WriteByte(' ')
			if c == '\\' && i+1 < len(line) {
				b.WriteByte(' ')
				i++
				continue
			}
			if c == '"' {
				inStr = false
			}
		case inChar:
			b.WriteByte(' ')
			if c == '\\' && i+1 < len(line) {
				b.WriteByte(' ')
				i++
				continue
			}
			if c == '\'' {
				inChar = false
			}
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			b.WriteString(strings.Repeat(" ", len(line)-i))
			i = len(line)
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			end := strings.Index(line[i+2:], "*/")
			if end == -1 {
				b.WriteString(strings.Repeat(" ", len(line)-i))
				i = len(line)
			} else {
				skip := end + 4
				b.WriteString(strings.Repeat(" ", skip))
				i += skip - 1
			}
		case c == '"':
			inStr = true
			b.WriteByte(' ')
		case c == '\'':
			inChar = true
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validOutsideLiterals reports whether every byte outside string/char
// literals and comments is valid UTF-8 (spec §6, "Non-UTF-8 bytes outside
// string/char literals cause Unresolved").
func validOutsideLiterals(raw []byte) bool {
	for _, l := range splitLines(string(raw)) {
		if !utf8.ValidString(stripCommentsAndLiterals(l)) {
			return false
		}
	}
	return true
}
