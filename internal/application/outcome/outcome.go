// Package outcome classifies what happened to a unit of work so callers can
// log, count and escalate it without inspecting error strings.
package outcome

import "fmt"

// Kind of processing result.
type Kind string

const (
	KindApplied     Kind = "applied"
	KindDuplicate   Kind = "duplicate"
	KindIgnored     Kind = "ignored"
	KindRecoverable Kind = "recoverable"
	KindFatal       Kind = "fatal"
)

var rank = map[Kind]int{
	KindDuplicate:   0,
	KindIgnored:     0,
	KindApplied:     1,
	KindRecoverable: 2,
	KindFatal:       3,
}

// Outcome is the result of processing one event or command.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

func Applied(reason string) Outcome {
	return Outcome{Kind: KindApplied, Reason: reason}
}

func Duplicate(reason string) Outcome {
	return Outcome{Kind: KindDuplicate, Reason: reason}
}

func Ignored(reason string) Outcome {
	return Outcome{Kind: KindIgnored, Reason: reason}
}

// Recoverable marks a committed change with a failed side artifact.
func Recoverable(reason string, err error) Outcome {
	return Outcome{Kind: KindRecoverable, Reason: reason, Err: err}
}

// Fatal marks a failure nothing will retry. It must reach an operator.
func Fatal(reason string, err error) Outcome {
	return Outcome{Kind: KindFatal, Reason: reason, Err: err}
}

func (o Outcome) IsFatal() bool {
	return o.Kind == KindFatal
}

// Changed reports whether state was mutated.
func (o Outcome) Changed() bool {
	return o.Kind == KindApplied || o.Kind == KindRecoverable
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %s: %v", o.Kind, o.Reason, o.Err)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}

// Worst returns the more severe of a and b, preferring a on ties.
func Worst(a, b Outcome) Outcome {
	if rank[b.Kind] > rank[a.Kind] {
		return b
	}
	return a
}
