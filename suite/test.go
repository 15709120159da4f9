package suite

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"

	"github.com/wanmail/eyes"
	"github.com/wanmail/eyes/cloud"
)

// Test is one test of a suite.
type Test struct {
	Eyes *eyes.Eyes
	// WD is the browser session. OpenEyes replaces it with the driver
	// returned by the Eyes.
	WD   selenium.WebDriver
	Name string

	suite *Suite

	mu     sync.Mutex
	failed bool

	teardownOnce sync.Once
	teardownErr  error
}

// Options returns the options of the suite the test belongs to.
func (t *Test) Options() Options { return t.suite.opts }

// Start tells the execution cloud that the test called name begins. Local
// browsers do not understand the signal, so nothing is sent to them.
func (t *Test) Start(name string) error {
	if t.Name == "" {
		t.Name = name
	}
	if t.suite.opts.Execution != ExecutionCloud {
		return nil
	}
	return cloud.StartTest(t.WD, name)
}

// OpenEyes opens the visual test and makes WD the driver it returns.
func (t *Test) OpenEyes(ctx context.Context, appName, testName string) error {
	wd, err := t.Eyes.Open(ctx, t.WD, appName, testName)
	if err != nil {
		return err
	}
	t.WD = wd
	return nil
}

// Fail marks the test as failed.
func (t *Test) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// Failed reports whether Fail was called.
func (t *Test) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Status is the status reported to the execution cloud at teardown.
func (t *Test) Status() string {
	if t.suite.opts.TeardownStatus == StatusFixed {
		return t.suite.opts.FixedStatus
	}
	if t.Failed() {
		return string(eyes.Failed)
	}
	return string(eyes.Passed)
}

// Teardown ends the test: it sends the end-test signal and then closes the
// browser window. Both are attempted; the first error is returned. Only the
// first call does anything.
//
// The end-test signal is only sent with cloud execution. Unlike the cloud,
// a local browser runs applitools: scripts as JavaScript and fails them, so
// local tests go straight to closing the window.
func (t *Test) Teardown(ctx context.Context) error {
	t.teardownOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			glog.Warningf("%s: tearing down with a done context: %v", t.Name, err)
		}
		status := t.Status()
		if t.suite.opts.Execution == ExecutionCloud {
			if err := cloud.EndTest(t.WD, status); err != nil {
				t.teardownErr = err
			}
		}
		if err := t.WD.Close(); err != nil {
			err = fmt.Errorf("closing window: %w", err)
			if t.teardownErr == nil {
				t.teardownErr = err
			} else {
				glog.Warningf("%s: %v", t.Name, err)
			}
		}
		glog.Infof("%s: ended with status %s", t.Name, status)
	})
	return t.teardownErr
}
