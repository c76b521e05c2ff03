package perf

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/dsl"
	"github.com/wesleyorama2/stampede/internal/materializer"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/report"
	"github.com/wesleyorama2/stampede/internal/runner"
	"github.com/wesleyorama2/stampede/internal/scenario"
	"github.com/wesleyorama2/stampede/internal/session"
	"github.com/wesleyorama2/stampede/internal/transport"
	"github.com/wesleyorama2/stampede/internal/users"
)

type (
	Step       = dsl.Step
	HTTPStep   = dsl.HTTPStep
	Predicate  = dsl.Predicate
	CustomFunc = dsl.CustomFunc

	Session = session.Session
	Scope   = session.Scope

	Scenario = scenario.Scenario
	Hooks    = scenario.Hooks

	User          = users.User
	Authenticator = users.Authenticator

	// HTTPConfig configures the shared HTTP client.
	HTTPConfig = transport.HTTPClientConfig

	Snapshot = metrics.Snapshot
	Result   = runner.Result
)

const (
	ScopeEphemeral  = session.ScopeEphemeral
	ScopeUser       = session.ScopeUser
	ScopeSimulation = session.ScopeSimulation
)

// Step constructors.
var (
	HTTP     = dsl.HTTP
	Sequence = dsl.Sequence
	Wait     = dsl.Wait
	Set      = dsl.Set
	SetConst = dsl.SetConst
	ForEach  = dsl.ForEach
	Repeat   = dsl.Repeat
	RunWhile = dsl.RunWhile
	RunIf    = dsl.RunIf
	Ensure   = dsl.Ensure
	Filter   = dsl.Filter
	Custom   = dsl.Custom
	Measure  = dsl.Measure
)

// Predicates and session accessors.
var (
	Exists        = dsl.Exists
	Not           = dsl.Not
	Counter       = dsl.Counter
	JSONField     = dsl.JSONField
	JSONItems     = dsl.JSONItems
	ConformsTo    = dsl.ConformsTo
	MustConformTo = dsl.MustConformTo

	RetryOnStatus      = dsl.RetryOnStatus
	RetryOnServerError = dsl.RetryOnServerError
)

// Named returns step with its display name set.
func Named[S Step](step S, name string) S { return dsl.Named(step, name) }

// Const returns a session function yielding v.
func Const[T any](v T) dsl.Func[T] { return dsl.Const(v) }

// FromSession returns a session function reading key.
func FromSession[T any](key string) dsl.Func[T] { return dsl.FromSession[T](key) }

// Lookup reads key from s as a T.
func Lookup[T any](s *Session, key string) (T, error) { return session.Lookup[T](s, key) }

// Register adds a scenario builder to the default registry used by the
// stampede command.
func Register(name string, fn scenario.BuildFunc) error {
	return scenario.Register(name, fn)
}

// MustRegister registers root as a scenario called name and panics on a
// duplicate name.
func MustRegister(name string, root Step) {
	if err := scenario.Default.RegisterStep(name, root); err != nil {
		panic(err)
	}
}

// Options configures Run.
type Options struct {
	// Name of the run (for reporting)
	Name string

	Duration       time.Duration
	MaxConcurrency int
	GracefulStop   time.Duration

	StartRPS     float64
	TargetRPS    float64
	RampDuration time.Duration

	// Users supplies identities; UserCount anonymous users are generated
	// when empty.
	Users     []User
	UserCount int
	Region    string
	// Authenticator logs users in during warm-up (default: none)
	Authenticator Authenticator

	// HTTP overrides the default client settings
	HTTP *HTTPConfig

	// Output receives the console report (default: os.Stdout)
	Output io.Writer
	// Quiet suppresses periodic console reports
	Quiet bool
	// ReportInterval between periodic reports (default: 5s)
	ReportInterval time.Duration

	Logger *zap.Logger
}

// Run drives scenarios until opts.Duration elapses or ctx is cancelled,
// then drains and returns the final statistics.
func Run(ctx context.Context, opts Options, scenarios ...*Scenario) (*Result, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("perf: no scenarios")
	}
	for _, sc := range scenarios {
		if sc == nil {
			return nil, fmt.Errorf("perf: nil scenario")
		}
		if err := scenario.Validate(sc.Root); err != nil {
			return nil, fmt.Errorf("perf: scenario %s: %w", sc.Name, err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "perf"
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 100
	}

	pool := opts.Users
	if opts.UserCount == 0 {
		opts.UserCount = len(pool)
	}
	if len(pool) == 0 {
		for i := range opts.UserCount {
			pool = append(pool, User{Username: fmt.Sprintf("user-%d", i+1), ID: fmt.Sprintf("%d", i+1)})
		}
	}
	repo := users.NewRepository(pool, opts.Authenticator, users.RepositoryConfig{}, logger.Named("users"))
	repo.Start(ctx)

	httpCfg := transport.DefaultHTTPClientConfig()
	if opts.HTTP != nil {
		httpCfg = *opts.HTTP
	}
	client := transport.NewHTTPClient(httpCfg, logger.Named("http"))
	defer client.CloseIdleConnections()

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	runID := uuid.NewString()
	aggCfg := metrics.DefaultAggregatorConfig()
	if opts.ReportInterval > 0 {
		aggCfg.Interval = opts.ReportInterval
	}
	aggregator := metrics.NewAggregator(aggCfg, logger.Named("metrics"), report.NewConsole(report.ConsoleConfig{
		RunName: opts.Name,
		RunID:   runID,
		Writer:  output,
		Quiet:   opts.Quiet,
	}))
	defer aggregator.Stop()

	r, err := runner.New(runner.Config{
		RunID:          runID,
		Duration:       opts.Duration,
		MaxConcurrency: opts.MaxConcurrency,
		GracefulStop:   opts.GracefulStop,
		StartRPS:       opts.StartRPS,
		TargetRPS:      opts.TargetRPS,
		RampDuration:   opts.RampDuration,
		UserCount:      opts.UserCount,
		Region:         opts.Region,
	}, repo, scenarios, materializer.New(client, materializer.WithLogger(logger)), aggregator, logger)
	if err != nil {
		return nil, err
	}
	return r.Start(ctx)
}
