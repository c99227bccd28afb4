package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/observability"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 10 * time.Second

// Status is the outcome of a check or of the whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ErrNotConfigured is returned by checks whose dependency has no credential.
var ErrNotConfigured = errors.New("not configured")

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name  string
	check func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.check(ctx) }

// CheckFunc adapts a function to a Checker.
func CheckFunc(name string, check func(ctx context.Context) error) Checker {
	return checkFunc{name: name, check: check}
}

// Pinger is satisfied by *client.Client and by pgmemory.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelCheck probes the model endpoint. A nil pinger reports ErrNotConfigured.
func ModelCheck(name string, pinger Pinger) Checker {
	return CheckFunc(name, func(ctx context.Context) error {
		if pinger == nil {
			return ErrNotConfigured
		}
		return pinger.Ping(ctx)
	})
}

// MemoryCheck lists spaces on the memory service. A nil provider reports
// ErrNotConfigured.
func MemoryCheck(name string, provider memory.Provider) Checker {
	return CheckFunc(name, func(ctx context.Context) error {
		if provider == nil {
			return ErrNotConfigured
		}
		_, err := provider.ListSpaces(ctx)
		return err
	})
}

// Check is the result of one Checker.
type Check struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates every check. It is healthy only if all checks are.
type Report struct {
	Status    Status    `json:"status"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// HTTPStatus is 200 when healthy and 503 otherwise.
func (r Report) HTTPStatus() int {
	if r.Healthy() {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Check returns the named check, if present.
func (r Report) Check(name string) (Check, bool) {
	i := slices.IndexFunc(r.Checks, func(c Check) bool { return c.Name == name })
	if i < 0 {
		return Check{}, false
	}
	return r.Checks[i], true
}

// Service runs a fixed set of checks concurrently.
type Service struct {
	checkers []Checker
	timeout  time.Duration
	observer observability.Provider
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each check.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithObserver logs failing checks.
func WithObserver(observer observability.Provider) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// NewService returns a Service running checkers in the given order.
func NewService(checkers []Checker, opts ...Option) *Service {
	s := &Service{
		checkers: slices.Clone(checkers),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observer = observability.OrNop(s.observer)
	return s
}

// Run executes every check and returns the aggregate report. Checks keep
// the order they were registered in. A service with no checks is unhealthy.
func (s *Service) Run(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Checks:    make([]Check, len(s.checkers)),
		CheckedAt: time.Now().UTC(),
	}
	if len(s.checkers) == 0 {
		report.Status = StatusUnhealthy
		return report
	}

	var g errgroup.Group
	for i, checker := range s.checkers {
		g.Go(func() error {
			report.Checks[i] = s.run(ctx, checker)
			return nil
		})
	}
	_ = g.Wait()

	for _, check := range report.Checks {
		if check.Status != StatusHealthy {
			report.Status = StatusUnhealthy
			s.observer.Warn(ctx, "health check failed",
				observability.String("health.check", check.Name),
				observability.String(observability.AttrStatusDescription, check.Message),
			)
		}
	}
	return report
}

func (s *Service) run(ctx context.Context, checker Checker) Check {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := checker.Check(ctx)
	check := Check{Name: checker.Name(), Status: StatusHealthy, Message: "ok", Duration: time.Since(start)}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("%s check failed: %v", checker.Name(), err)
	}
	return check
}
