package scenario

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/jsonpath"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
)

// compiler turns declarative step configs into step trees.
type compiler struct {
	vars    map[string]string
	headers map[string]string
}

// Compile builds the step tree of a declarative scenario. Variables are
// substituted into {{name}} placeholders when the tree is built; headers
// are added to every http step before its own headers.
func Compile(sc config.ScenarioConfig, variables, headers map[string]string) (*Scenario, error) {
	c := &compiler{vars: variables, headers: headers}

	steps, err := c.steps(sc.Steps)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	return &Scenario{
		Name:        sc.Name,
		Description: sc.Description,
		Root:        dsl.Named(dsl.Sequence(steps...), sc.Name),
	}, nil
}

// RegisterConfig compiles every declarative scenario in cfg into r.
func RegisterConfig(r *Registry, cfg *config.Config) error {
	for _, sc := range cfg.Scenarios {
		if err := r.Register(sc.Name, func() (*Scenario, error) {
			return Compile(sc, cfg.Variables, cfg.HTTP.Headers)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) steps(configs []config.StepConfig) ([]dsl.Step, error) {
	steps := make([]dsl.Step, 0, len(configs))
	for i, sc := range configs {
		step, err := c.step(sc)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (c *compiler) step(sc config.StepConfig) (dsl.Step, error) {
	switch {
	case sc.HTTP != nil:
		return c.http(sc.HTTP)
	case sc.Wait != nil:
		return dsl.Wait(time.Duration(*sc.Wait)), nil
	case sc.Set != nil:
		return c.set(sc.Set)
	case sc.Repeat != nil:
		children, err := c.steps(sc.Repeat.Steps)
		if err != nil {
			return nil, err
		}
		return dsl.Repeat(sc.Repeat.Count, children...), nil
	case sc.Ensure != nil:
		return c.ensure(sc.Ensure)
	case sc.ForEach != nil:
		return c.forEach(sc.ForEach)
	default:
		return nil, fmt.Errorf("step has no kind")
	}
}

func (c *compiler) http(hc *config.HTTPStepConfig) (dsl.Step, error) {
	scope, err := session.ParseScope(hc.Scope)
	if err != nil {
		return nil, err
	}

	method := hc.Method
	if method == "" {
		method = http.MethodGet
	}
	step := dsl.HTTP(hc.Name).Request(method, template(hc.URL, c.vars))

	if headers := mergeHeaders(c.headers, hc.Headers); len(headers) > 0 {
		step = step.HeadersFrom(c.headerFunc(headers))
	}
	if len(hc.Query) > 0 {
		step = step.QueryFrom(c.valuesFunc(hc.Query))
	}
	if len(hc.Form) > 0 {
		step = step.FormFrom(c.valuesFunc(hc.Form))
	}
	if hc.Body != "" {
		body := template(hc.Body, c.vars)
		step = step.WithBody(func(s *session.Session) (any, error) {
			return body(s)
		})
	}
	if hc.Auth {
		step = step.Auth()
	}
	if hc.Unmeasured {
		step = step.NoMeasurement()
	}
	if hc.Retry != nil {
		step = step.RetryWhen(retryCondition(hc.Retry), hc.Retry.Max)
		if hc.Retry.Cumulative {
			step = step.Cumulative()
		}
	}

	if len(hc.Extract) == 0 {
		if hc.SaveTo != "" {
			step = step.SaveIn(scope, hc.SaveTo)
		}
		return step, nil
	}

	// Extraction needs the response, so it is always stored.
	saveTo := hc.SaveTo
	if saveTo == "" {
		saveTo = "_response." + hc.Name
	}
	step = step.SaveIn(scope, saveTo)

	seq := []dsl.Step{step}
	for _, ex := range hc.Extract {
		write, err := extractStep(ex, scope, saveTo)
		if err != nil {
			return nil, err
		}
		seq = append(seq, write)
	}
	return dsl.Sequence(seq...), nil
}

func (c *compiler) headerFunc(headers map[string]string) dsl.Func[http.Header] {
	funcs := make(map[string]dsl.Func[string], len(headers))
	for k, v := range headers {
		funcs[k] = template(v, c.vars)
	}
	return func(s *session.Session) (http.Header, error) {
		h := make(http.Header, len(funcs))
		for k, fn := range funcs {
			v, err := fn(s)
			if err != nil {
				return nil, err
			}
			h.Set(k, v)
		}
		return h, nil
	}
}

func (c *compiler) valuesFunc(values map[string]string) dsl.Func[url.Values] {
	funcs := make(map[string]dsl.Func[string], len(values))
	for k, v := range values {
		funcs[k] = template(v, c.vars)
	}
	return func(s *session.Session) (url.Values, error) {
		out := make(url.Values, len(funcs))
		for k, fn := range funcs {
			v, err := fn(s)
			if err != nil {
				return nil, err
			}
			out.Set(k, v)
		}
		return out, nil
	}
}

func mergeHeaders(defaults, own map[string]string) map[string]string {
	if len(defaults) == 0 {
		return own
	}
	merged := maps.Clone(defaults)
	maps.Copy(merged, own)
	return merged
}

func retryCondition(rc *config.RetryConfig) func(*transport.Response) bool {
	onStatus := dsl.RetryOnStatus(rc.Statuses...)
	if !rc.ServerErrors {
		return onStatus
	}
	return func(resp *transport.Response) bool {
		return onStatus(resp) || dsl.RetryOnServerError(resp)
	}
}

// extractStep stores one value taken from the response saved under key.
func extractStep(ex config.ExtractConfig, respScope session.Scope, key string) (dsl.Step, error) {
	scope, err := session.ParseScope(ex.Scope)
	if err != nil {
		return nil, err
	}

	value := func(s *session.Session) (any, error) {
		v, err := s.In(respScope, key)
		if err != nil {
			return nil, err
		}
		resp, ok := v.(*transport.Response)
		if !ok {
			return nil, &session.TypeMismatchError{Key: key, Scope: respScope, Want: "*transport.Response", Got: fmt.Sprintf("%T", v)}
		}

		switch ex.Source {
		case "header":
			h := resp.Header.Get(ex.Path)
			if h == "" {
				return nil, fmt.Errorf("extract %s: header %s not present", ex.Name, ex.Path)
			}
			return h, nil
		case "status":
			return strconv.Itoa(resp.StatusCode), nil
		default:
			result, err := jsonpath.Get(resp.Bytes(), ex.Path)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", ex.Name, err)
			}
			return result.String(), nil
		}
	}

	return dsl.Named(dsl.Set(ex.Name, value).In(scope), "extract "+ex.Name), nil
}

func (c *compiler) set(sc *config.SetStepConfig) (dsl.Step, error) {
	scope, err := session.ParseScope(sc.Scope)
	if err != nil {
		return nil, err
	}
	value := template(sc.Value, c.vars)
	return dsl.Set(sc.Key, func(s *session.Session) (any, error) {
		return value(s)
	}).In(scope), nil
}

func (c *compiler) ensure(ec *config.EnsureStepConfig) (dsl.Step, error) {
	var checks []dsl.Predicate

	if ec.Status != 0 {
		checks = append(checks, func(s *session.Session) (bool, error) {
			resp, err := session.Lookup[*transport.Response](s, ec.Key)
			if errors.Is(err, session.ErrKeyNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return resp.StatusCode == ec.Status, nil
		})
	}

	if ec.Path != "" {
		var equals dsl.Func[string]
		if ec.Equals != "" {
			equals = template(ec.Equals, c.vars)
		}
		checks = append(checks, func(s *session.Session) (bool, error) {
			result, err := s.JSON(ec.Key, ec.Path)
			if errors.Is(err, jsonpath.ErrNotFound) || errors.Is(err, session.ErrKeyNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if equals == nil {
				return true, nil
			}
			want, err := equals(s)
			if err != nil {
				return false, err
			}
			return jsonString(result) == want, nil
		})
	}

	if ec.Schema != "" {
		conforms, err := dsl.ConformsTo(ec.Key, ec.Schema)
		if err != nil {
			return nil, err
		}
		checks = append(checks, absentIsFalse(conforms))
	}

	if len(checks) == 0 {
		return nil, fmt.Errorf("ensure on %s has no checks", ec.Key)
	}

	cause := ec.Cause
	if cause == "" {
		cause = "ensure " + ec.Key
	}
	return dsl.Ensure(all(checks), cause), nil
}

// absentIsFalse treats a missing key as a failed check. The key is gone
// when the request that fills it failed, and the ensure should then fail
// with its own cause.
func absentIsFalse(p dsl.Predicate) dsl.Predicate {
	return func(s *session.Session) (bool, error) {
		ok, err := p(s)
		if errors.Is(err, session.ErrKeyNotFound) {
			return false, nil
		}
		return ok, err
	}
}

func all(checks []dsl.Predicate) dsl.Predicate {
	checks = slices.Clone(checks)
	return func(s *session.Session) (bool, error) {
		for _, check := range checks {
			ok, err := check(s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func jsonString(r gjson.Result) string {
	if r.Type == gjson.Null {
		return "null"
	}
	return r.String()
}

func (c *compiler) forEach(fc *config.ForEachStepConfig) (dsl.Step, error) {
	children, err := c.steps(fc.Steps)
	if err != nil {
		return nil, err
	}

	path := fc.Path
	if path == "" {
		path = "$"
	}

	step := dsl.ForEach(dsl.JSONItems(fc.In, path), func(item any, _ int) dsl.Step {
		steps := make([]dsl.Step, 0, len(children)+1)
		steps = append(steps, dsl.SetConst(fc.As, render(item)))
		steps = append(steps, children...)
		return dsl.Sequence(steps...)
	})
	if fc.CollectTo != "" {
		step = step.Collect(fc.CollectTo)
	}
	return step, nil
}
