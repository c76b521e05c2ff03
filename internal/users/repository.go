package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InsufficientUsersError is returned by Lease when fewer matching users are
// authenticated than requested.
type InsufficientUsersError struct {
	Want   int
	Have   int
	Region string
}

func (e *InsufficientUsersError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("insufficient users in region %q: want %d, have %d", e.Region, e.Want, e.Have)
	}
	return fmt.Sprintf("insufficient users: want %d, have %d", e.Want, e.Have)
}

// Authenticator turns a source user into an authenticated one.
type Authenticator interface {
	Authenticate(ctx context.Context, u User) (User, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, u User) (User, error)

// Authenticate calls f(ctx, u).
func (f AuthenticatorFunc) Authenticate(ctx context.Context, u User) (User, error) {
	return f(ctx, u)
}

// NoopAuthenticator passes users through unchanged.
type NoopAuthenticator struct{}

// Authenticate returns u.
func (NoopAuthenticator) Authenticate(_ context.Context, u User) (User, error) {
	return u, nil
}

// RepositoryConfig contains configuration for Repository.
type RepositoryConfig struct {
	// Parallelism bounds concurrent authentications (default: 8)
	Parallelism int
	// RetryInterval is the pause before re-trying failed users (default: 5s)
	RetryInterval time.Duration
}

// Repository authenticates a fixed set of users in the background and
// leases them out once they are ready.
type Repository struct {
	source []User
	auth   Authenticator
	config RepositoryConfig
	logger *zap.Logger

	mu     sync.RWMutex
	ready  []User
	failed int

	startOnce sync.Once
	done      chan struct{}
}

// NewRepository creates a repository over source. A nil auth passes users
// through unchanged.
func NewRepository(source []User, auth Authenticator, config RepositoryConfig, logger *zap.Logger) *Repository {
	if auth == nil {
		auth = NoopAuthenticator{}
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 8
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	src := make([]User, len(source))
	copy(src, source)

	return &Repository{
		source: src,
		auth:   auth,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start authenticates every source user in the background. Users whose
// authentication fails are retried every RetryInterval until ctx ends.
// Calling Start more than once has no effect.
func (r *Repository) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(ctx)
	})
}

// Done is closed once every source user is authenticated or Start's
// context has ended.
func (r *Repository) Done() <-chan struct{} {
	return r.done
}

func (r *Repository) run(ctx context.Context) {
	defer close(r.done)

	pending := r.source
	for pass := 1; len(pending) > 0; pass++ {
		pending = r.authenticate(ctx, pending)
		if len(pending) == 0 || ctx.Err() != nil {
			break
		}

		r.logger.Warn("user authentication incomplete, retrying",
			zap.Int("pass", pass),
			zap.Int("pending", len(pending)),
			zap.Duration("retryIn", r.config.RetryInterval))

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.config.RetryInterval):
		}
	}

	r.logger.Info("users ready", zap.Int("count", r.Size()))
}

// authenticate runs one pass over users and returns those that failed.
func (r *Repository) authenticate(ctx context.Context, users []User) []User {
	var (
		mu     sync.Mutex
		failed []User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)

	for _, u := range users {
		g.Go(func() error {
			authed, err := r.auth.Authenticate(gctx, u)
			if err != nil {
				r.logger.Debug("authentication failed",
					zap.String("username", u.Username),
					zap.Error(err))
				mu.Lock()
				failed = append(failed, u)
				mu.Unlock()
				return nil
			}

			r.mu.Lock()
			r.ready = append(r.ready, authed)
			r.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	r.failed = len(failed)
	r.mu.Unlock()

	return failed
}

// Size returns the number of authenticated users.
func (r *Repository) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ready)
}

// Failed returns how many users failed the most recent pass.
func (r *Repository) Failed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failed
}

// Has reports whether at least count users are authenticated.
func (r *Repository) Has(count int) bool {
	return r.Size() >= count
}

// Lease returns count authenticated users of region. An empty region
// matches every user. The same users are returned on every call; the
// caller owns the returned slice.
func (r *Repository) Lease(count int, region string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	leased := make([]User, 0, count)
	for _, u := range r.ready {
		if len(leased) == count {
			break
		}
		if u.InRegion(region) {
			leased = append(leased, u)
		}
	}
	if len(leased) < count {
		return nil, &InsufficientUsersError{Want: count, Have: len(leased), Region: region}
	}
	return leased, nil
}
