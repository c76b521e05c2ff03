package dsl

import (
	"fmt"
	"io"
	"strings"
)

// Walk calls fn for step and every statically known descendant, depth
// first. ForEach bodies are built at run time and are not visited.
// Returning false from fn stops descent into that node's children.
func Walk(step Step, fn func(step Step, depth int) bool) {
	walk(step, 0, fn)
}

func walk(step Step, depth int, fn func(Step, int) bool) {
	if step == nil || !fn(step, depth) {
		return
	}
	for _, child := range Children(step) {
		walk(child, depth+1, fn)
	}
}

// Children returns the direct, statically known children of step.
func Children(step Step) []Step {
	switch st := step.(type) {
	case SequenceStep:
		return st.Steps
	case RepeatStep:
		return []Step{st.Child}
	case RunWhileStep:
		return []Step{st.Child}
	case RunIfStep:
		return []Step{st.Child}
	case MeasureStep:
		return []Step{st.Child}
	default:
		return nil
	}
}

// Print writes an indented outline of the tree to w.
func Print(w io.Writer, step Step) {
	Walk(step, func(st Step, depth int) bool {
		label := st.Kind().String()
		if st.Name() != "" {
			label += " " + st.Name()
		}
		switch s := st.(type) {
		case HTTPStep:
			label += fmt.Sprintf(" [%s]", s.Method)
		case RepeatStep:
			label += fmt.Sprintf(" x%d", s.Count)
		case WaitStep:
			label += " " + s.Duration.String()
		case SessionWriteStep:
			label += fmt.Sprintf(" %s (%s)", s.Key, s.Scope)
		case EnsureStep:
			label += fmt.Sprintf(" %q", s.Cause)
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label)
		return true
	})
}
