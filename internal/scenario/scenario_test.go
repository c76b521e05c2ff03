package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/materializer"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
	"github.com/wesleyorama2/stampede/internal/users"
)

func newSession() *session.Session {
	return session.New(0, users.User{Username: "ada", ID: "u-1"}, session.NewSimulation())
}

func steps(t *testing.T, doc string) config.ScenarioConfig {
	t.Helper()
	var sc config.ScenarioConfig
	require.NoError(t, yaml.Unmarshal([]byte(doc), &sc))
	return sc
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterStep("a", dsl.Wait(time.Millisecond)))
	require.NoError(t, r.Register("b", func() (*Scenario, error) {
		return &Scenario{Root: dsl.Wait(time.Millisecond)}, nil
	}))

	assert.ErrorIs(t, r.RegisterStep("a", dsl.Wait(0)), ErrDuplicate)
	assert.Error(t, r.Register("", func() (*Scenario, error) { return nil, nil }))
	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.True(t, r.Has("b"))

	all, err := r.Build()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[1].Name, "unnamed scenarios take their registered name")

	picked, err := r.Build("b")
	require.NoError(t, err)
	require.Len(t, picked, 1)

	_, err = r.Build("missing")
	assert.ErrorIs(t, err, ErrUnknown)

	assert.Panics(t, func() { r.MustRegister("a", func() (*Scenario, error) { return nil, nil }) })
}

func TestRegistry_BuildErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build()
	assert.Error(t, err, "empty registry")

	r.MustRegister("broken", func() (*Scenario, error) { return nil, errors.New("boom") })
	r.MustRegister("nil", func() (*Scenario, error) { return nil, nil })
	r.MustRegister("invalid", func() (*Scenario, error) {
		return &Scenario{Root: dsl.Sequence(dsl.HTTP("no-endpoint"))}, nil
	})

	for _, name := range []string{"broken", "nil", "invalid"} {
		_, err := r.Build(name)
		assert.Error(t, err, name)
	}
}

func TestValidate(t *testing.T) {
	valid := dsl.Sequence(
		dsl.HTTP("a").Get("http://x"),
		dsl.Repeat(2, dsl.Wait(time.Millisecond)),
		dsl.Ensure(dsl.Exists("k"), "k"),
	)
	assert.NoError(t, Validate(valid))
	assert.Error(t, Validate(nil))

	invalid := dsl.Sequence(
		dsl.HTTP("a"),
		dsl.Repeat(1, dsl.Wait(-time.Second)),
		dsl.RunWhile(nil, dsl.Wait(0)),
		dsl.Filter(nil),
		nil,
	)
	err := Validate(invalid)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	msg := err.Error()
	assert.Contains(t, msg, "root/0:a")
	assert.Contains(t, msg, "negative wait")
	assert.Contains(t, msg, "run-while without a predicate")
	assert.Contains(t, msg, "filter without a predicate")
	assert.Contains(t, msg, "nil step")
}

func TestTemplate(t *testing.T) {
	s := newSession()
	s.Set(session.ScopeEphemeral, "id", 42)
	s.Simulation().Set("tenant", "acme")

	fn := template("{{base}}/t/{{tenant}}/items/{{id}}", map[string]string{"base": "http://api"})
	got, err := fn(s)
	require.NoError(t, err)
	assert.Equal(t, "http://api/t/acme/items/42", got)

	_, err = template("{{nope}}", nil)(s)
	assert.ErrorIs(t, err, session.ErrKeyNotFound)

	constant, err := template("plain", nil)(s)
	require.NoError(t, err)
	assert.Equal(t, "plain", constant)
}

// shopServer serves a small catalogue API and records request paths.
type shopServer struct {
	mu    sync.Mutex
	paths []string
}

func (s *shopServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.Method+" "+r.URL.RequestURI())
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/login":
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Session", "sess-"+string(body))
		fmt.Fprint(w, `{"token":"t-1"}`)
	case r.URL.Path == "/items":
		fmt.Fprint(w, `{"items":["a","b"],"total":2}`)
	case strings.HasPrefix(r.URL.Path, "/items/"):
		if r.Header.Get("Authorization") != "Bearer t-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"id":%q}`, strings.TrimPrefix(r.URL.Path, "/items/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *shopServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func run(t *testing.T, sc *Scenario, s *session.Session) error {
	t.Helper()
	client := transport.NewHTTPClient(transport.DefaultHTTPClientConfig(), nil)
	m := materializer.New(client)
	_, err := m.Run(context.Background(), sc.Name, sc.Root, s)
	return err
}

func TestCompile_EndToEnd(t *testing.T) {
	srv := &shopServer{}
	server := httptest.NewServer(srv)
	defer server.Close()

	sc := steps(t, `
name: shop
steps:
  - http:
      name: login
      method: POST
      url: "{{base}}/login"
      body: "{{who}}"
      extract:
        - name: token
          path: $.token
          scope: user
        - name: sid
          source: header
          path: X-Session
  - set:
      key: who2
      value: "{{who}}-again"
  - http:
      name: list
      url: "{{base}}/items"
      query:
        page: "1"
      saveTo: items
  - ensure:
      key: items
      status: 200
      path: $.total
      equals: "2"
      schema: '{"type":"object","required":["items"]}'
      cause: bad listing
  - foreach:
      in: items
      path: $.items
      as: item
      collectTo: details
      steps:
        - http:
            name: detail
            url: "{{base}}/items/{{item}}"
            headers:
              Authorization: "Bearer {{token}}"
  - repeat:
      count: 2
      steps:
        - wait: 1ms
`)
	scenario, err := Compile(sc, map[string]string{"base": server.URL, "who": "ada"}, map[string]string{"X-Client": "stampede"})
	require.NoError(t, err)
	require.NoError(t, Validate(scenario.Root))
	assert.Equal(t, "shop", scenario.Root.Name())

	s := newSession()
	require.NoError(t, run(t, scenario, s))

	token, err := s.In(session.ScopeUser, "token")
	require.NoError(t, err)
	assert.Equal(t, "t-1", token)

	sid, err := session.Lookup[string](s, "sid")
	require.NoError(t, err)
	assert.Equal(t, "sess-ada", sid)

	who2, err := session.Lookup[string](s, "who2")
	require.NoError(t, err)
	assert.Equal(t, "ada-again", who2)

	details, err := session.Lookup[[]any](s, "details")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, `{"id":"a"}`, details[0].(*transport.Response).String())

	paths := srv.Paths()
	assert.Equal(t, []string{"POST /login", "GET /items?page=1", "GET /items/a", "GET /items/b"}, paths)

	var statuses []string
	for _, m := range s.Measurements() {
		statuses = append(statuses, m.Step+"="+m.Status)
	}
	assert.Equal(t, []string{"login=200", "list=200", "detail=200", "detail=200"}, statuses)
}

func TestCompile_EnsureFails(t *testing.T) {
	server := httptest.NewServer(&shopServer{})
	defer server.Close()

	sc := steps(t, `
name: strict
steps:
  - http:
      name: list
      url: "{{base}}/items"
      saveTo: items
  - ensure:
      key: items
      path: $.total
      equals: "3"
      cause: wrong total
  - http:
      name: never
      url: "{{base}}/items"
`)
	scenario, err := Compile(sc, map[string]string{"base": server.URL}, nil)
	require.NoError(t, err)

	s := newSession()
	err = run(t, scenario, s)
	require.ErrorIs(t, err, materializer.ErrEnsureFailed)
	assert.Contains(t, err.Error(), "wrong total")

	ms := s.Measurements()
	require.Len(t, ms, 2)
	assert.Equal(t, metrics.StatusKO, ms[1].Status)
}

func TestCompile_EnsureAfterNetworkFailure(t *testing.T) {
	refused := transport.ClientFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	tests := []struct {
		name  string
		check string
	}{
		{"status", "status: 200"},
		{"path", "path: $.total"},
		{"schema", `schema: '{"type": "object"}'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := steps(t, `
name: strict
steps:
  - http:
      name: list
      url: http://shop.invalid/items
      saveTo: items
  - ensure:
      key: items
      `+tt.check+`
      cause: list unavailable
`)
			scenario, err := Compile(sc, nil, nil)
			require.NoError(t, err)

			s := newSession()
			_, err = materializer.New(refused).Run(context.Background(), sc.Name, scenario.Root, s)
			require.ErrorIs(t, err, materializer.ErrEnsureFailed)
			assert.NotErrorIs(t, err, session.ErrKeyNotFound)
			assert.Contains(t, err.Error(), "list unavailable")
		})
	}
}

func TestCompile_Retry(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sc := steps(t, `
name: flaky
steps:
  - http:
      name: poll
      url: "`+server.URL+`"
      retry:
        statuses: [503]
        max: 5
        cumulative: true
`)
	scenario, err := Compile(sc, nil, nil)
	require.NoError(t, err)

	s := newSession()
	require.NoError(t, run(t, scenario, s))
	ms := s.Measurements()
	require.Len(t, ms, 1)
	assert.Equal(t, "200", ms[0].Status)
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestCompile_Errors(t *testing.T) {
	bad := []string{
		"name: x\nsteps:\n  - {}\n",
		"name: x\nsteps:\n  - http: {url: 'http://x', scope: forever}\n",
		"name: x\nsteps:\n  - ensure: {key: k, schema: '{\"type\": 12}'}\n",
		"name: x\nsteps:\n  - ensure: {key: k}\n",
	}
	for _, doc := range bad {
		_, err := Compile(steps(t, doc), nil, nil)
		assert.Error(t, err, doc)
	}
}

func TestRegisterConfig(t *testing.T) {
	cfg := &config.Config{
		Variables: map[string]string{"base": "http://localhost"},
		Scenarios: []config.ScenarioConfig{
			steps(t, "name: one\nsteps:\n  - http: {url: '{{base}}/a'}\n"),
			steps(t, "name: two\nsteps:\n  - wait: 1ms\n"),
		},
	}

	r := NewRegistry()
	require.NoError(t, RegisterConfig(r, cfg))
	assert.Equal(t, []string{"one", "two"}, r.Names())

	built, err := r.Build()
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, dsl.KindSequence, built[0].Root.Kind())

	assert.ErrorIs(t, RegisterConfig(r, cfg), ErrDuplicate)
}
