package eyes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerNames(t *testing.T) {
	assert.Equal(t, "Classic runner", NewClassicRunner().Name())
	assert.Equal(t, "Ultrafast Grid", NewVisualGridRunner(5).Name())
	assert.Equal(t, 1, NewClassicRunner().Concurrency())
	assert.Equal(t, 1, NewVisualGridRunner(0).Concurrency())
	assert.Equal(t, VisualGrid, NewVisualGridRunner(3).Kind())
}

func TestGetAllTestResultsWithoutTests(t *testing.T) {
	for _, r := range []*Runner{NewClassicRunner(), NewVisualGridRunner(5)} {
		summary, err := r.GetAllTestResults(context.Background(), true)
		require.NoError(t, err)
		assert.Empty(t, summary.Results)
	}
}

func TestGetAllTestResultsClosesOpenTests(t *testing.T) {
	env := newTestEnv(t)
	runner := NewVisualGridRunner(2)
	var all []*Eyes
	for _, name := range []string{"one", "two", "three"} {
		e := New(runner)
		e.SetConfiguration(env.conf)
		_, err := e.Open(context.Background(), env.wd, "App", name)
		require.NoError(t, err)
		all = append(all, e)
	}
	// One test is closed by hand, the others by the runner.
	_, err := all[0].Close(context.Background())
	require.NoError(t, err)

	summary, err := runner.GetAllTestResults(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, summary.Results, 3)
	assert.Equal(t, 3, summary.Passed)
	assert.Len(t, env.server.Stops(), 3)
	for _, e := range all {
		assert.False(t, e.IsOpen())
	}

	// Results stay with the runner.
	again, err := runner.GetAllTestResults(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, again.Results, 3)
}

func TestGetAllTestResultsRaises(t *testing.T) {
	env := newTestEnv(t)
	env.server.SetResult("Unresolved", 1)
	runner := NewClassicRunner()
	e := New(runner)
	e.SetConfiguration(env.conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Diff")
	require.NoError(t, err)

	summary, err := runner.GetAllTestResults(context.Background(), true)
	var failed *TestFailedError
	require.True(t, errors.As(err, &failed), "GetAllTestResults returned %v, want a *TestFailedError", err)
	assert.Same(t, summary, failed.Summary)
	assert.Equal(t, 1, summary.Unresolved)
	assert.Equal(t, 1, summary.Mismatches)

	_, err = runner.GetAllTestResults(context.Background(), false)
	assert.NoError(t, err)
}

func TestGetAllTestResultsRecordsCloseFailures(t *testing.T) {
	env := newTestEnv(t)
	runner := NewClassicRunner()
	e := New(runner)
	e.SetConfiguration(env.conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Lost")
	require.NoError(t, err)
	env.server.Close()

	summary, err := runner.GetAllTestResults(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Error(t, summary.Results[0].Exception)
	assert.Equal(t, 1, summary.Exceptions)
}
