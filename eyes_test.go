package eyes

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanmail/eyes/internal/eyestest"
)

func environmentOf(start map[string]interface{}) map[string]interface{} {
	env, _ := start["environment"].(map[string]interface{})
	return env
}

func TestOpenCloseClassic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	runner := NewClassicRunner()
	e := New(runner)
	e.SetConfiguration(env.conf)

	wd, err := e.Open(ctx, env.wd, "", "Front page")
	require.NoError(t, err)
	d, ok := wd.(*Driver)
	require.True(t, ok, "Open returned %T, want *Driver", wd)
	assert.Same(t, e, d.Eyes())
	assert.True(t, e.IsOpen())

	starts := env.server.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "Unit App", starts[0]["appIdOrName"])
	assert.Equal(t, "Front page", starts[0]["scenarioIdOrName"])
	assert.Equal(t, AgentID, starts[0]["agentId"])
	batch, _ := starts[0]["batchInfo"].(map[string]interface{})
	assert.Equal(t, "unit batch", batch["name"])
	want := map[string]interface{}{"os": "linux", "hostingApp": "Chrome 120"}
	if diff := cmp.Diff(want, environmentOf(starts[0])); diff != "" {
		t.Errorf("start environment returned diff (-want/+got):\n%s", diff)
	}

	containers, err := e.Close(ctx)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	r := containers[0].TestResults
	require.NotNil(t, r)
	assert.Equal(t, Passed, r.Status)
	assert.Equal(t, "Front page", r.Name)
	assert.Equal(t, "Unit App", r.AppName)
	assert.Equal(t, "unit batch", r.BatchName)
	assert.NotEmpty(t, r.URL)
	assert.True(t, r.IsNew)
	assert.False(t, e.IsOpen())

	if diff := cmp.Diff([]eyestest.Stop{{ID: "running-1"}}, env.server.Stops()); diff != "" {
		t.Errorf("stops returned diff (-want/+got):\n%s", diff)
	}
}

func TestOpenVisualGridStartsOneSessionPerTarget(t *testing.T) {
	env := newTestEnv(t)
	conf := env.conf
	conf.AddBrowser(800, 600, Chrome)
	conf.AddBrowser(1600, 1200, Firefox)
	conf.AddDeviceEmulation(Pixel2, Portrait)

	e := New(NewVisualGridRunner(2))
	e.SetConfiguration(conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Grid")
	require.NoError(t, err)

	starts := env.server.Starts()
	require.Len(t, starts, 3)
	assert.Equal(t, "chrome", environmentOf(starts[0])["hostingApp"])
	assert.Equal(t, map[string]interface{}{"width": 800.0, "height": 600.0}, environmentOf(starts[0])["displaySize"])
	assert.Equal(t, "firefox", environmentOf(starts[1])["hostingApp"])
	assert.Equal(t, "Pixel 2 (portrait)", environmentOf(starts[2])["deviceInfo"])

	containers, err := e.Close(context.Background())
	require.NoError(t, err)
	var targets []string
	for _, c := range containers {
		targets = append(targets, c.Target.String())
	}
	assert.Equal(t, []string{"chrome 800x600", "firefox 1600x1200", "Pixel 2 (portrait)"}, targets)
}

func TestClassicRunnerIgnoresTargets(t *testing.T) {
	env := newTestEnv(t)
	conf := env.conf
	conf.AddBrowser(800, 600, Chrome)
	conf.AddDeviceEmulation(Nexus10, Landscape)

	e := New(NewClassicRunner())
	e.SetConfiguration(conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Classic")
	require.NoError(t, err)
	assert.Len(t, env.server.Starts(), 1)
	_, err = e.Close(context.Background())
	require.NoError(t, err)
}

func TestOpenTwice(t *testing.T) {
	env := newTestEnv(t)
	e := New(nil)
	e.SetConfiguration(env.conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Twice")
	require.NoError(t, err)
	defer e.Close(context.Background())

	_, err = e.Open(context.Background(), env.wd, "App", "Twice")
	if !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("second Open returned %v, want ErrAlreadyOpen", err)
	}
}

func TestOpenAbortsStartedSessionsOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.server.FailStartAfter(1)
	conf := env.conf
	conf.AddBrowser(800, 600, Chrome)
	conf.AddBrowser(1024, 768, Safari)
	conf.AddBrowser(1600, 1200, Firefox)

	runner := NewVisualGridRunner(3)
	e := New(runner)
	e.SetConfiguration(conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Refused")
	require.Error(t, err)

	var serr *ServerError
	require.True(t, errors.As(err, &serr), "Open returned %v, want a *ServerError", err)
	assert.Equal(t, 500, serr.StatusCode)
	assert.Equal(t, "start refused", serr.Message)
	assert.False(t, e.IsOpen())
	assert.Len(t, env.server.Starts(), 2)
	if diff := cmp.Diff([]eyestest.Stop{{ID: "running-1", Aborted: true}}, env.server.Stops()); diff != "" {
		t.Errorf("stops returned diff (-want/+got):\n%s", diff)
	}

	summary, err := runner.GetAllTestResults(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
}

func TestCloseWhenNotOpen(t *testing.T) {
	env := newTestEnv(t)
	e := New(nil)
	e.SetConfiguration(env.conf)
	containers, err := e.Close(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, containers)
	containers, err = e.Abort(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, containers)
	assert.Empty(t, env.server.Stops())
}

func TestAbort(t *testing.T) {
	env := newTestEnv(t)
	e := New(nil)
	e.SetConfiguration(env.conf)
	_, err := e.Open(context.Background(), env.wd, "App", "Aborted")
	require.NoError(t, err)

	containers, err := e.Abort(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.True(t, containers[0].TestResults.IsAborted)
	assert.Equal(t, []eyestest.Stop{{ID: "running-1", Aborted: true}}, env.server.Stops())

	// A second Abort has nothing left to stop.
	containers, err = e.Abort(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, containers)
}

func TestOpenUnwrapsDriver(t *testing.T) {
	env := newTestEnv(t)
	first := New(nil)
	first.SetConfiguration(env.conf)
	wd, err := first.Open(context.Background(), env.wd, "App", "First")
	require.NoError(t, err)

	second := New(nil)
	second.SetConfiguration(env.conf)
	wd2, err := second.Open(context.Background(), wd, "App", "Second")
	require.NoError(t, err)
	assert.Same(t, second, wd2.(*Driver).Eyes())
	assert.Equal(t, env.wd, wd2.(*Driver).Unwrap())

	_, err = first.Close(context.Background())
	assert.NoError(t, err)
	_, err = second.Close(context.Background())
	assert.NoError(t, err)
}

func TestOpenWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t)
	conf := env.conf
	conf.APIKey = ""
	e := New(nil)
	e.SetConfiguration(conf)
	_, err := e.Open(context.Background(), env.wd, "App", "No key")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("Open returned %v, want ErrNoAPIKey", err)
	}
	assert.Empty(t, env.server.Starts())
}

func TestOpenToleratesCapabilitiesFailure(t *testing.T) {
	env := newTestEnv(t)
	env.browser.FailOn("capabilities", "not supported")
	e := New(nil)
	e.SetConfiguration(env.conf)
	_, err := e.Open(context.Background(), env.wd, "App", "No caps")
	require.NoError(t, err)
	defer e.Close(context.Background())

	starts := env.server.Starts()
	require.Len(t, starts, 1)
	assert.Empty(t, environmentOf(starts[0]))
}

func TestConfigurationIsCopied(t *testing.T) {
	conf := Configuration{AppName: "App", Batch: NewBatchInfo("b")}
	conf.AddBrowser(800, 600, Chrome)
	e := New(nil)
	e.SetConfiguration(conf)

	conf.Browsers[0].Width = 1
	conf.Batch.Name = "changed"
	got := e.Configuration()
	assert.Equal(t, 800, got.Browsers[0].Width)
	assert.Equal(t, "b", got.Batch.Name)

	got.AppName = "other"
	assert.Equal(t, "App", e.Configuration().AppName)
}

func TestExecutionCloudURL(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tc := range []struct {
		name    string
		ctx     context.Context
		conf    Configuration
		want    string
		wantErr bool
	}{
		{name: "default", ctx: context.Background(), want: DefaultExecutionCloudURL},
		{name: "configured", ctx: context.Background(), conf: Configuration{ExecutionCloudURL: "http://127.0.0.1:4444/wd/hub"}, want: "http://127.0.0.1:4444/wd/hub"},
		{name: "bad scheme", ctx: context.Background(), conf: Configuration{ExecutionCloudURL: "ftp://exec.example.com"}, wantErr: true},
		{name: "canceled", ctx: canceled, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExecutionCloudURL(tc.ctx, tc.conf)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
