package perf

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/scenario"
)

func TestRun(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[1,2]}`)
	}))
	defer server.Close()

	root := Sequence(
		HTTP("list").Get(server.URL+"/items").SaveAs("items"),
		Ensure(Exists("items"), "no listing"),
		ForEach(JSONItems("items", "$.items"), func(item any, _ int) Step {
			return HTTP("detail").Get(fmt.Sprintf("%s/items/%v", server.URL, item))
		}),
	)

	var out bytes.Buffer
	result, err := Run(context.Background(), Options{
		Name:      "facade",
		Duration:  300 * time.Millisecond,
		TargetRPS: 20,
		UserCount: 2,
		Output:    &out,
		Quiet:     true,
	}, &Scenario{Name: "browse", Root: root})
	require.NoError(t, err)

	assert.Positive(t, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, result.Completed*3, hits.Load())

	require.NotNil(t, result.Snapshot)
	cycles, ok := result.Snapshot.Cycle("browse")
	require.True(t, ok)
	assert.Equal(t, result.Completed, cycles.Completed)
	assert.Contains(t, out.String(), "facade")
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), Options{Duration: time.Second, TargetRPS: 1, UserCount: 1})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{Duration: time.Second, TargetRPS: 1, UserCount: 1},
		&Scenario{Name: "bad", Root: HTTP("no-endpoint")})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{TargetRPS: 1, UserCount: 1},
		&Scenario{Name: "ok", Root: Wait(0)})
	assert.Error(t, err, "duration is required")
}

func TestMustRegister(t *testing.T) {
	name := "perf-test-" + t.Name()
	MustRegister(name, Wait(time.Millisecond))
	assert.True(t, scenario.Default.Has(name))
	assert.Panics(t, func() { MustRegister(name, Wait(0)) })
}

func TestHelpers(t *testing.T) {
	step := Named(SetConst("k", 1).In(ScopeUser), "remember")
	assert.Equal(t, "remember", step.Name())

	v, err := Const("x")(nil)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
