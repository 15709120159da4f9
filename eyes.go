package eyes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blang/semver"
	"github.com/golang/glog"
	"github.com/tebeka/selenium"

	"github.com/wanmail/eyes/cloud"
)

// ErrAlreadyOpen is returned by Open on an Eyes that is open.
var ErrAlreadyOpen = errors.New("eyes: already open")

// Eyes is one visual test. It is opened around a browser session, and its
// results are collected by the Runner it was created with.
type Eyes struct {
	runner *Runner

	mu       sync.Mutex
	conf     Configuration
	sessions []*targetSession
	driver   *Driver
}

type targetSession struct {
	target  RenderTarget
	session *RunningSession
}

// New returns an Eyes reporting to r. A nil runner means a new classic runner.
func New(r *Runner) *Eyes {
	if r == nil {
		r = NewClassicRunner()
	}
	return &Eyes{runner: r, conf: NewConfiguration()}
}

// SetConfiguration replaces the configuration with a copy of c.
func (e *Eyes) SetConfiguration(c Configuration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conf = c.Clone()
}

// Configuration returns a copy of the configuration.
func (e *Eyes) Configuration() Configuration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conf.Clone()
}

// Runner returns the runner the results are reported to.
func (e *Eyes) Runner() *Runner { return e.runner }

// IsOpen reports whether Open succeeded and neither Close nor Abort has been
// called since.
func (e *Eyes) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.driver != nil
}

// Driver wraps the WebDriver handed to Open. Every WebDriver call goes to the
// wrapped session.
type Driver struct {
	selenium.WebDriver
	eyes *Eyes
}

// Eyes returns the Eyes the driver was opened by.
func (d *Driver) Eyes() *Eyes { return d.eyes }

// Unwrap returns the wrapped WebDriver.
func (d *Driver) Unwrap() selenium.WebDriver { return d.WebDriver }

// Open starts the test sessions for appName and testName on the Eyes server:
// one per configured render target for a visual grid runner, a single one
// otherwise. Empty names fall back to the configuration. The returned
// driver replaces wd for the rest of the test.
func (e *Eyes) Open(ctx context.Context, wd selenium.WebDriver, appName, testName string) (selenium.WebDriver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver != nil {
		return nil, ErrAlreadyOpen
	}
	if wd == nil {
		return nil, errors.New("eyes: nil WebDriver")
	}
	if d, ok := wd.(*Driver); ok {
		wd = d.Unwrap()
	}
	if appName == "" {
		appName = e.conf.AppName
	}
	if testName == "" {
		testName = e.conf.TestName
	}
	if e.conf.Batch == nil {
		e.conf.Batch = NewBatchInfo(testName)
	}

	targets := []RenderTarget{{}}
	if e.runner.kind == VisualGrid && len(e.conf.Targets()) > 0 {
		targets = e.conf.Targets()
	}
	host := describeHost(wd)
	server := newServerConnector(e.conf.ServerURL, e.conf.APIKey)

	var sessions []*targetSession
	for _, t := range targets {
		info := &startInfo{
			AgentID:          AgentID,
			AppIDOrName:      appName,
			ScenarioIDOrName: testName,
			BatchInfo:        e.conf.Batch,
			Environment:      environmentFor(t, host, e.conf.ViewportSize),
			MatchLevel:       "Strict",
		}
		s, err := server.startSession(ctx, info)
		if err != nil {
			for _, started := range sessions {
				if _, aerr := server.stopSession(ctx, started.session, true); aerr != nil {
					glog.Warningf("aborting session %s: %v", started.session.ID, aerr)
				}
			}
			return nil, fmt.Errorf("eyes: opening %q for %s: %w", testName, t, err)
		}
		glog.V(1).Infof("eyes session %s started for %q on %s", s.ID, testName, t)
		sessions = append(sessions, &targetSession{target: t, session: s})
	}

	e.conf.AppName, e.conf.TestName = appName, testName
	e.sessions = sessions
	e.driver = &Driver{WebDriver: wd, eyes: e}
	e.runner.opened(e)
	return e.driver, nil
}

// Close stops every session of the test and hands the results to the runner.
// Calling Close on an Eyes that is not open does nothing.
func (e *Eyes) Close(ctx context.Context) ([]TestResultContainer, error) {
	return e.stop(ctx, false)
}

// Abort stops every session of the test, discarding its checkpoints.
// Calling Abort on an Eyes that is not open does nothing.
func (e *Eyes) Abort(ctx context.Context) ([]TestResultContainer, error) {
	return e.stop(ctx, true)
}

func (e *Eyes) stop(ctx context.Context, aborted bool) ([]TestResultContainer, error) {
	e.mu.Lock()
	if e.driver == nil {
		e.mu.Unlock()
		return nil, nil
	}
	sessions := e.sessions
	e.sessions, e.driver = nil, nil
	conf := e.conf
	e.mu.Unlock()

	server := newServerConnector(conf.ServerURL, conf.APIKey)
	var errs []error
	containers := make([]TestResultContainer, 0, len(sessions))
	for _, ts := range sessions {
		c := TestResultContainer{Target: ts.target}
		r, err := server.stopSession(ctx, ts.session, aborted)
		if err != nil {
			c.Exception = fmt.Errorf("stopping session %s: %w", ts.session.ID, err)
			errs = append(errs, c.Exception)
		} else {
			if r.Name == "" {
				r.Name = conf.TestName
			}
			if r.AppName == "" {
				r.AppName = conf.AppName
			}
			if conf.Batch != nil {
				r.BatchID, r.BatchName = conf.Batch.ID, conf.Batch.Name
			}
			c.TestResults = r
		}
		containers = append(containers, c)
	}
	e.runner.closed(e, containers)
	return containers, errors.Join(errs...)
}

type hostInfo struct {
	app, os string
}

// describeHost reads the session capabilities to name the browser and OS the
// test runs on. Failures only cost the description.
func describeHost(wd selenium.WebDriver) hostInfo {
	caps, err := wd.Capabilities()
	if err != nil {
		glog.Warningf("reading session capabilities: %v", err)
		return hostInfo{}
	}
	str := func(k string) string {
		v, _ := caps[k].(string)
		return v
	}
	var h hostInfo
	h.os = str("platformName")
	if h.os == "" {
		h.os = str("platform")
	}
	name := str("browserName")
	version := str("browserVersion")
	if version == "" {
		version = str("version")
	}
	h.app = name
	// Browsers report four components, e.g. 120.0.6099.109.
	if parts := strings.SplitN(version, ".", 4); len(parts) == 4 {
		version = strings.Join(parts[:3], ".")
	}
	if v, err := semver.ParseTolerant(version); err == nil {
		h.app = fmt.Sprintf("%s %d", capitalize(name), v.Major)
	} else if version != "" {
		glog.V(1).Infof("unparsable browser version %q: %v", version, err)
	}
	return h
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func environmentFor(t RenderTarget, host hostInfo, viewport RectangleSize) environment {
	env := environment{OS: host.os, HostingApp: host.app}
	switch {
	case t.Desktop != nil:
		env.HostingApp = string(t.Desktop.Name)
		env.DisplaySize = &RectangleSize{Width: t.Desktop.Width, Height: t.Desktop.Height}
	case t.Device != nil:
		env.DeviceInfo = fmt.Sprintf("%s (%s)", t.Device.Name, t.Device.Orientation)
	case !viewport.IsEmpty():
		v := viewport
		env.DisplaySize = &v
	}
	return env
}

// ExecutionCloudURL returns the WebDriver endpoint of the execution cloud:
// the configured URL or DefaultExecutionCloudURL. The URL is checked to be
// usable as an endpoint before it is returned.
func ExecutionCloudURL(ctx context.Context, conf Configuration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u := conf.ExecutionCloudURL
	if u == "" {
		u = DefaultExecutionCloudURL
	}
	if _, err := cloud.ParseEndpoint(u); err != nil {
		return "", fmt.Errorf("eyes: execution cloud URL: %w", err)
	}
	return u, nil
}
