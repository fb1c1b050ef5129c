package ownership

import "strings"

// AccessPath is a non-empty ordered sequence of segments beginning with a
// live local/parameter name and continuing with field-access or
// indirection segments (spec §3, "Root"). It's backed by a single
// canonical string so values are comparable and usable directly as
// elements of a github.com/hashicorp/go-set Set, which requires
// comparable element types.
type AccessPath struct {
	canonical string // segments joined by "\x00"
}

// ParseAccessPath normalizes a C lvalue-expression's textual form into
// segments. `.` and `->` are both field access (semantically equivalent
// once the tracer has already resolved which applies); `[i]` is an
// indirection/subscript segment preserved verbatim (so `arr[4]` and
// `arr[0]` are distinct paths, matching spec scenario 4).
func ParseAccessPath(expr string) AccessPath {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "(*")
	expr = strings.TrimPrefix(expr, "*")
	expr = strings.TrimSuffix(expr, ")")

	segs := splitSegments(expr)
	return AccessPath{canonical: strings.Join(segs, "\x00")}
}

func splitSegments(expr string) []string {
	var segs []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}
	i := 0
	for i < len(expr) {
		switch {
		case strings.HasPrefix(expr[i:], "->"):
			flush()
			i += 2
		case expr[i] == '.':
			flush()
			i++
		case expr[i] == '[':
			flush()
			j := strings.IndexByte(expr[i:], ']')
			if j == -1 {
				cur.WriteString(expr[i:])
				i = len(expr)
				continue
			}
			segs = append(segs, expr[i:i+j+1])
			i += j + 1
		default:
			cur.WriteByte(expr[i])
			i++
		}
	}
	flush()
	return segs
}

func (p AccessPath) segments() []string {
	if p.canonical == "" {
		return nil
	}
	return strings.Split(p.canonical, "\x00")
}

// String renders the path back to its canonical C-expression form.
func (p AccessPath) String() string {
	segs := p.segments()
	if len(segs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(segs[0])
	for _, s := range segs[1:] {
		if strings.HasPrefix(s, "[") {
			b.WriteString(s)
		} else {
			b.WriteString("->")
			b.WriteString(s)
		}
	}
	return b.String()
}

// Head returns the root variable name this path begins at.
func (p AccessPath) Head() string {
	segs := p.segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// Valid reports whether this path carries any segments at all.
func (p AccessPath) Valid() bool { return p.canonical != "" }

// Equal reports whether p and o name the same normalized segment
// sequence (spec §3, "Two roots are equal if their normalized segment
// sequences are equal").
func (p AccessPath) Equal(o AccessPath) bool { return p.canonical == o.canonical }

// HasPrefix reports whether prefix is a (non-strict) prefix of p's
// segment sequence (used to detect `c->f` collapsing roots rooted under
// `c`, spec §4.D "If lhs is a strict prefix of any root").
func (p AccessPath) HasPrefix(prefix AccessPath) bool {
	pSegs, prefSegs := p.segments(), prefix.segments()
	if len(prefSegs) > len(pSegs) {
		return false
	}
	for i := range prefSegs {
		if pSegs[i] != prefSegs[i] {
			return false
		}
	}
	return true
}

// StrictPrefixOf reports whether p is a strict (shorter) prefix of o.
func (p AccessPath) StrictPrefixOf(o AccessPath) bool {
	return len(p.segments()) < len(o.segments()) && o.HasPrefix(p)
}

// WithSuffixOf replaces the portion of p's path covered by oldPrefix with
// newPrefix's segments, keeping whatever trailed after oldPrefix (spec
// §4.D "replaced with new segments").
func (p AccessPath) WithSuffixOf(oldPrefix, newPrefix AccessPath) AccessPath {
	tail := append([]string{}, p.segments()[len(oldPrefix.segments()):]...)
	segs := append(append([]string{}, newPrefix.segments()...), tail...)
	return AccessPath{canonical: strings.Join(segs, "\x00")}
}

// IsNullLiteral reports whether expr is a literal treated as "not equal
// to the tracked address" (spec §4.D "Special case rhs == NULL").
func IsNullLiteral(expr string) bool {
	e := strings.TrimSpace(expr)
	return e == "NULL" || e == "0" || e == "(void*)0" || e == "(void *)0"
}
