// Package trace defines the linear execution trace the dynamic tracer
// produces and the ownership tracker consumes (spec §3, ExecTrace).
package trace

// Kind identifies which TraceEvent variant a value holds — a closed,
// exhaustively-switchable discriminated union (spec §9's design note).
type Kind int

const (
	KindEnter Kind = iota
	KindReturn
	KindAssign
	KindAlias
	KindFree
	KindCond
	KindLoopIter
	KindScopeExit
)

func (k Kind) String() string {
	switch k {
	case KindEnter:
		return "Enter"
	case KindReturn:
		return "Return"
	case KindAssign:
		return "Assign"
	case KindAlias:
		return "Alias"
	case KindFree:
		return "Free"
	case KindCond:
		return "Cond"
	case KindLoopIter:
		return "LoopIter"
	case KindScopeExit:
		return "ScopeExit"
	}
	return "Unknown"
}

// Event is implemented by every TraceEvent variant. The unexported marker
// method closes the union: a new variant added elsewhere cannot silently
// satisfy this interface, so every exhaustive switch over Kind() needs an
// explicit case for it.
type Event interface {
	Kind() Kind
	eventMarker()
}

// Loc is a source coordinate as observed by the tracer.
type Loc struct {
	File string
	Line int
}

// Enter: function call entered. ArgBindings maps parameter name to the
// caller-side source expression it was bound to.
type Enter struct {
	Function    string
	Loc         Loc
	ArgBindings map[string]string
	// Opaque is true when the callee's source could not be extracted; the
	// tracker treats its body as a black box (spec §4.D "Opaque frames").
	Opaque bool
	// FreeWrapper marks an Enter into a recognized free-wrapper (minimally
	// "free" itself). Tracer never sets it: for a free-wrapper call it
	// emits a bare Free event and no Enter/Return pair (spec §4.C).
	FreeWrapper bool
}

func (Enter) Kind() Kind   { return KindEnter }
func (Enter) eventMarker() {}

// Return: function returned. ReturnHolder is the caller-side LHS receiving
// the call's result, if any. Loc is the call site in the caller — the
// same coordinate as the matching Enter's Loc — since that is where
// control resumes and where a RootCause arising from this Return is
// attributed (spec §4.D "Opaque frames": "line = call site in caller").
type Return struct {
	Function     string
	Loc          Loc
	ReturnExpr   string
	ReturnHolder string
	HasHolder    bool
}

func (Return) Kind() Kind   { return KindReturn }
func (Return) eventMarker() {}

// Assign: `lhs = rhs;`.
type Assign struct {
	Loc           Loc
	LHS           string
	RHS           string
	IsDeclaration bool
}

func (Assign) Kind() Kind   { return KindAssign }
func (Assign) eventMarker() {}

// Alias: subset of Assign where RHS is a pure variable or field access
// (no call, no arithmetic).
type Alias struct {
	Loc Loc
	LHS string
	RHS string
}

func (Alias) Kind() Kind   { return KindAlias }
func (Alias) eventMarker() {}

// Free: `free(expr)` or a recognized free-wrapper call.
type Free struct {
	Loc          Loc
	ArgumentExpr string
}

func (Free) Kind() Kind   { return KindFree }
func (Free) eventMarker() {}

// Cond: branch outcome observed from the next program counter.
type Cond struct {
	Loc   Loc
	Taken bool
	Text  string
}

func (Cond) Kind() Kind   { return KindCond }
func (Cond) eventMarker() {}

// LoopIter: one observed iteration of a loop body.
type LoopIter struct {
	Loc           Loc
	IterationIdx  int
	BodyEvents    []Event
}

func (LoopIter) Kind() Kind   { return KindLoopIter }
func (LoopIter) eventMarker() {}

// ScopeExit: block close; the named locals go out of scope.
type ScopeExit struct {
	Loc           Loc
	BindingsDying []string
}

func (ScopeExit) Kind() Kind   { return KindScopeExit }
func (ScopeExit) eventMarker() {}

// ExecTrace is the ordered, finite sequence of events the tracer produced
// for one whole run, ending at program exit (or cancellation). It is not
// cut short at the event that renders a tracked allocation unreachable;
// the ownership tracker stops replaying there instead.
type ExecTrace struct {
	Events []Event
}

// Flatten returns a flattened, in-order view of events, expanding LoopIter
// bodies inline right after the LoopIter event itself — the form the
// ownership tracker consumes (spec §4.D:
// "A LoopIter is processed by replaying its inner events in order").
func Flatten(events []Event) []Event {
	var out []Event
	for _, e := range events {
		if li, ok := e.(LoopIter); ok {
			out = append(out, li)
			out = append(out, Flatten(li.BodyEvents)...)
			continue
		}
		out = append(out, e)
	}
	return out
}
