package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/etsi014-conformance/api/kmeclient"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/identity"
	"github.com/ruteri/etsi014-conformance/interfaces"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Verdict is the final state of a scenario.
type Verdict string

const (
	Passed  Verdict = "passed"
	Failed  Verdict = "failed"
	Errored Verdict = "errored"
)

// Result is the outcome of one scenario run.
type Result struct {
	Name      string               `json:"name"`
	Family    Family               `json:"family"`
	Verdict   Verdict              `json:"verdict"`
	Failures  []string             `json:"failures,omitempty"`
	Error     string               `json:"error,omitempty"`
	Duration  time.Duration        `json:"duration"`
	Exchanges []kmeclient.Exchange `json:"exchanges,omitempty"`
}

// Mirror reports a failed or errored result on t, typically a *testing.T.
func (res Result) Mirror(t interface{ Errorf(string, ...interface{}) }) {
	if res.Error != "" {
		t.Errorf("%s errored: %s", res.Name, res.Error)
	}
	for _, failure := range res.Failures {
		t.Errorf("%s: %s", res.Name, failure)
	}
	if res.Verdict != Passed {
		for _, ex := range res.Exchanges {
			t.Errorf("%s: %s %s -> %d %s", res.Name, ex.Method, ex.URL, ex.StatusCode, ex.ResponseBody)
		}
	}
}

// RequesterFactory creates the requester a scenario uses for one identity.
// Exchanges must be reported to hook.
type RequesterFactory func(id identity.Identity, hook func(kmeclient.Exchange)) interfaces.KeyRequester

type Option func(*Runner)

// WithParallelism bounds the number of scenarios running at once.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// WithRequesterFactory replaces the HTTPS requesters built from the registry.
func WithRequesterFactory(f RequesterFactory) Option {
	return func(r *Runner) {
		r.newRequester = f
	}
}

// Runner executes scenarios against the KME described by a registry.
type Runner struct {
	registry     *identity.Registry
	log          *slog.Logger
	parallel     int
	newRequester RequesterFactory
}

// NewRunner creates a runner building one client per identity and scenario
// through factory.
func NewRunner(registry *identity.Registry, factory *cryptoutils.TransportFactory, log *slog.Logger, opts ...Option) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Runner{
		registry: registry,
		log:      log,
		parallel: 1,
	}
	r.newRequester = func(id identity.Identity, hook func(kmeclient.Exchange)) interfaces.KeyRequester {
		return kmeclient.New(factory.Build(id.Certificate), id.BaseURL, log.With("sae", id.SAEID), kmeclient.WithExchangeHook(hook))
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunAll runs every scenario and collects the results in table order.
// A failing scenario never stops the others.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) *Report {
	start := time.Now()
	results := make([]Result, len(scenarios))

	var passed, failed, errored atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(r.parallel)

	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			res := r.Run(ctx, sc)
			results[i] = res

			switch res.Verdict {
			case Passed:
				passed.Inc()
			case Failed:
				failed.Inc()
			default:
				errored.Inc()
			}
			r.log.Info("scenario finished", "name", res.Name, "verdict", res.Verdict, "duration", res.Duration)
			return nil
		})
	}
	_ = g.Wait()

	return &Report{
		Results:  results,
		Passed:   int(passed.Load()),
		Failed:   int(failed.Load()),
		Errored:  int(errored.Load()),
		Duration: time.Since(start),
	}
}

// Run executes a single scenario.
func (r *Runner) Run(ctx context.Context, sc Scenario) (res Result) {
	start := time.Now()
	res = Result{Name: sc.Name, Family: sc.Family, Verdict: Passed}

	var mu sync.Mutex
	hook := func(ex kmeclient.Exchange) {
		mu.Lock()
		res.Exchanges = append(res.Exchanges, ex)
		mu.Unlock()
	}

	a := NewAssertions()
	defer func() {
		res.Duration = time.Since(start)
		res.Failures = a.Failures()
		if res.Verdict == Passed && len(res.Failures) > 0 {
			res.Verdict = Failed
		}
		if res.Verdict == Passed {
			// Keep reports small; exchanges are only useful for diagnosis.
			res.Exchanges = nil
		}
	}()

	requesters := make(map[interfaces.Role]interfaces.KeyRequester)
	rec := &Record{}
	for i, step := range sc.Steps {
		requester, ok := requesters[step.As]
		if !ok {
			requester = r.newRequester(r.registry.Identity(step.As), hook)
			requesters[step.As] = requester
		}

		results, err := r.execute(ctx, requester, rec, i, step)
		if err != nil {
			r.log.Debug("scenario errored", "name", sc.Name, "step", i, "err", err)
			res.Verdict = Errored
			res.Error = err.Error()
			return res
		}
		rec.steps = append(rec.steps, results)

		if !verifyStep(a, i, step, results) {
			// Later steps and checks depend on this one.
			return res
		}
	}

	for _, check := range sc.Checks {
		check.Verify(a, rec)
	}
	return res
}

// execute runs a step once per style. Transport failures, schema violations and
// unsatisfiable preconditions abort the scenario.
func (r *Runner) execute(ctx context.Context, requester interfaces.KeyRequester, rec *Record, i int, step Step) ([]StepResult, error) {
	var results []StepResult
	for _, style := range step.styles() {
		sr := StepResult{Style: style}

		var err error
		switch step.Op {
		case interfaces.OpEncKeys:
			sr.Keys, err = requester.EncKeys(ctx, style, step.Target, step.Request)
		case interfaces.OpDecKeys:
			ids, idErr := rec.keyIDs(step.KeyIDs)
			if idErr != nil {
				return nil, fmt.Errorf("step %d: %w", i, idErr)
			}
			sr.Keys, err = requester.DecKeys(ctx, style, step.Target, ids)
		case interfaces.OpStatus:
			sr.Status, err = requester.Status(ctx, step.Target)
		default:
			return nil, fmt.Errorf("step %d: unsupported operation %q", i, step.Op)
		}

		sr.Err = err
		sr.Outcome = kmeclient.Classify(err)
		sr.StatusCode = kmeclient.StatusCode(err)
		if sr.Outcome.Fatal() {
			return nil, fmt.Errorf("step %d %s as %s (%s style): %s: %w", i, step.Op, step.As, style, sr.Outcome, err)
		}
		results = append(results, sr)
	}
	return results, nil
}

// verifyStep asserts the expected outcome for every style and the equivalence
// of the styles. It reports whether the step produced its expected outcome.
func verifyStep(a *Assertions, i int, step Step, results []StepResult) bool {
	ok := true
	for _, sr := range results {
		label := fmt.Sprintf("step %d %s as %s (%s style)", i, step.Op, step.As, sr.Style)
		if !a.Equal(step.Expect.Outcome.String(), sr.Outcome.String(), "%s: unexpected outcome (%v)", label, sr.Err) {
			ok = false
			continue
		}
		if sr.Outcome == kmeclient.OutcomeSuccess {
			continue
		}
		if len(step.Expect.Statuses) > 0 {
			if !a.Contains(step.Expect.Statuses, sr.StatusCode, "%s: unexpected status code", label) {
				ok = false
			}
		}
		var rejected *kmeclient.RejectedError
		if errors.As(sr.Err, &rejected) {
			a.NotEmpty(strings.TrimSpace(rejected.Message.Message), "%s: rejection carries an empty message", label)
		}
	}

	if len(results) < 2 {
		return ok
	}
	first := results[0]
	for _, other := range results[1:] {
		a.Equal(first.Outcome.String(), other.Outcome.String(), "step %d: %s and %s styles disagree on the outcome", i, first.Style, other.Style)
		if first.Keys == nil || other.Keys == nil {
			continue
		}
		a.Equal(len(first.Keys.Keys), len(other.Keys.Keys), "step %d: %s and %s styles returned a different number of keys", i, first.Style, other.Style)
		a.Equal(keySizes(first.Keys), keySizes(other.Keys), "step %d: %s and %s styles returned keys of different sizes", i, first.Style, other.Style)
	}
	return ok
}

func keySizes(c *interfaces.KeyContainer) []int {
	materials := make([]string, 0, len(c.Keys))
	for _, k := range c.Keys {
		materials = append(materials, k.Key)
	}
	return DecodedSizes(materials)
}
