package scenario

import (
	"errors"
	"fmt"

	"github.com/wesleyorama2/stampede/internal/dsl"
)

// StepError describes a structurally invalid step.
type StepError struct {
	Path string
	Msg  string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("invalid step at %s: %s", e.Path, e.Msg)
}

// Validate checks a step tree for structural problems that would otherwise
// surface as invariant violations mid-run. ForEach bodies are built per
// element at run time and are only checked for presence.
func Validate(root dsl.Step) error {
	if root == nil {
		return &StepError{Path: "root", Msg: "scenario has no steps"}
	}

	var errs []error
	validate(root, "root", &errs)
	return errors.Join(errs...)
}

func validate(step dsl.Step, path string, errs *[]error) {
	add := func(msg string) {
		*errs = append(*errs, &StepError{Path: path, Msg: msg})
	}
	if step == nil {
		add("nil step")
		return
	}

	switch st := step.(type) {
	case dsl.HTTPStep:
		if st.Endpoint == nil {
			add("http step without an endpoint")
		}
		if st.Retry != nil && st.Retry.MaxRetries < 0 {
			add("negative retry count")
		}
	case dsl.WaitStep:
		if st.Duration < 0 {
			add("negative wait")
		}
	case dsl.SessionWriteStep:
		if st.Key == "" || st.Value == nil {
			add("session write needs a key and a value")
		}
	case dsl.ForEachStep:
		if st.Source == nil || st.Body == nil {
			add("foreach without a source or body")
		}
	case dsl.RepeatStep:
		if st.Count < 0 {
			add("negative repeat count")
		}
	case dsl.RunWhileStep:
		if st.While == nil {
			add("run-while without a predicate")
		}
	case dsl.RunIfStep:
		if st.When == nil {
			add("run-if without a predicate")
		}
	case dsl.EnsureStep:
		if st.Check == nil {
			add("ensure without a predicate")
		}
	case dsl.FilterStep:
		if st.Keep == nil {
			add("filter without a predicate")
		}
	case dsl.CustomStep:
		if st.Fn == nil {
			add("custom step without a function")
		}
	}

	for i, child := range dsl.Children(step) {
		validate(child, fmt.Sprintf("%s/%d:%s", path, i, label(child)), errs)
	}
}

func label(step dsl.Step) string {
	if step == nil {
		return "nil"
	}
	if step.Name() != "" {
		return step.Name()
	}
	return step.Kind().String()
}
