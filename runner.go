package eyes

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// RunnerKind selects where the screenshots of a test are rendered.
type RunnerKind int

const (
	// Classic renders in the browser driven by the test.
	Classic RunnerKind = iota
	// VisualGrid renders every configured browser and device in the
	// Ultrafast Grid.
	VisualGrid
)

// Runner collects the results of every Eyes created with it.
type Runner struct {
	kind        RunnerKind
	concurrency int

	mu      sync.Mutex
	open    []*Eyes
	results []TestResultContainer
}

// NewClassicRunner returns a runner for tests rendered locally.
func NewClassicRunner() *Runner {
	return &Runner{kind: Classic, concurrency: 1}
}

// NewVisualGridRunner returns a runner for the Ultrafast Grid. concurrency
// bounds how many tests are finished at once; values below one mean one.
func NewVisualGridRunner(concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{kind: VisualGrid, concurrency: concurrency}
}

// Kind returns the runner kind.
func (r *Runner) Kind() RunnerKind { return r.kind }

// Concurrency returns the number of tests finished in parallel.
func (r *Runner) Concurrency() int { return r.concurrency }

// Name is the human readable runner name used in batch names.
func (r *Runner) Name() string {
	if r.kind == VisualGrid {
		return "Ultrafast Grid"
	}
	return "Classic runner"
}

func (r *Runner) opened(e *Eyes) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = append(r.open, e)
}

func (r *Runner) closed(e *Eyes, containers []TestResultContainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.open {
		if o == e {
			r.open = append(r.open[:i], r.open[i+1:]...)
			break
		}
	}
	r.results = append(r.results, containers...)
}

// GetAllTestResults closes every Eyes that is still open and summarizes all
// results collected so far. Failures to close a test are reported in the
// summary, not as an error. When shouldRaise is set and a test did not pass,
// the summary is returned together with a *TestFailedError.
func (r *Runner) GetAllTestResults(ctx context.Context, shouldRaise bool) (*TestResultsSummary, error) {
	r.mu.Lock()
	pending := append([]*Eyes(nil), r.open...)
	r.mu.Unlock()

	if len(pending) > 0 {
		glog.Infof("closing %d open test(s) with concurrency %d", len(pending), r.concurrency)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, e := range pending {
			e := e
			g.Go(func() error {
				// Close records its own failures as exceptions.
				e.Close(gctx)
				return nil
			})
		}
		g.Wait()
	}

	r.mu.Lock()
	summary := newSummary(append([]TestResultContainer(nil), r.results...))
	r.mu.Unlock()

	if shouldRaise && summary.Passed < len(summary.Results) {
		return summary, &TestFailedError{Summary: summary}
	}
	return summary, nil
}
