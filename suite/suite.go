// Package suite runs visual tests the way the NAB demo does: one shared
// configuration and runner for the whole run, and a fresh Eyes and browser
// session for every test.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/log"

	"github.com/wanmail/eyes"
	"github.com/wanmail/eyes/cloud"
)

// RemoteFunc opens a browser session at the WebDriver endpoint addr.
type RemoteFunc func(caps selenium.Capabilities, addr string) (selenium.WebDriver, error)

// SetupOption configures a Suite.
type SetupOption func(*Suite) error

// WithRemote replaces selenium.NewRemote for opening browser sessions.
func WithRemote(f RemoteFunc) SetupOption {
	return func(s *Suite) error {
		if f == nil {
			return errors.New("nil RemoteFunc")
		}
		s.newRemote = f
		return nil
	}
}

// WithServiceOutput sends the output of the local ChromeDriver to w.
func WithServiceOutput(w io.Writer) SetupOption {
	return func(s *Suite) error {
		s.serviceOutput = w
		return nil
	}
}

// Suite holds what the tests of one run share.
type Suite struct {
	opts   Options
	runner *eyes.Runner
	conf   eyes.Configuration

	newRemote     RemoteFunc
	serviceOutput io.Writer
	service       *selenium.Service
	localAddr     string

	teardownOnce sync.Once
	summary      *eyes.TestResultsSummary
	teardownErr  error
}

// Setup initializes the suite: the runner, the batch and the configuration
// shared by every test. With local execution and a ChromeDriver path it also
// starts ChromeDriver, which Teardown stops.
func Setup(opts Options, setupOpts ...SetupOption) (*Suite, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Suite{
		opts:      opts,
		newRemote: selenium.NewRemote,
		localAddr: opts.LocalAddr,
	}
	for _, o := range setupOpts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if opts.Grid == GridCloud {
		s.runner = eyes.NewVisualGridRunner(opts.Concurrency)
	} else {
		s.runner = eyes.NewClassicRunner()
	}

	conf := eyes.NewConfiguration()
	if opts.ServerURL != "" {
		conf.ServerURL = opts.ServerURL
	}
	if opts.APIKey != "" {
		conf.APIKey = opts.APIKey
	}
	if opts.ExecutionCloudURL != "" {
		conf.ExecutionCloudURL = opts.ExecutionCloudURL
	}
	conf.AppName = opts.AppName
	conf.Batch = eyes.NewBatchInfo(fmt.Sprintf("%s with the %s", opts.BatchName, s.runner.Name()))
	if opts.Grid == GridCloud {
		conf.AddBrowser(800, 600, eyes.Chrome)
		conf.AddBrowser(1600, 1200, eyes.Firefox)
		conf.AddBrowser(1024, 768, eyes.Safari)
		conf.AddDeviceEmulation(eyes.Pixel2, eyes.Portrait)
		conf.AddDeviceEmulation(eyes.Nexus10, eyes.Landscape)
	}
	s.conf = conf

	if opts.Execution == ExecutionLocal && s.localAddr == "" {
		if err := s.startService(); err != nil {
			return nil, err
		}
	}
	glog.Infof("suite ready: batch %q, %s, execution %s", conf.Batch.Name, s.runner.Name(), opts.Execution)
	return s, nil
}

func pickUnusedPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

func (s *Suite) startService() error {
	port, err := pickUnusedPort()
	if err != nil {
		return fmt.Errorf("picking a port for ChromeDriver: %w", err)
	}
	var svcOpts []selenium.ServiceOption
	if s.opts.FrameBuffer {
		svcOpts = append(svcOpts, selenium.StartFrameBuffer())
	}
	if s.serviceOutput != nil {
		svcOpts = append(svcOpts, selenium.Output(s.serviceOutput))
	}
	svc, err := selenium.NewChromeDriverService(s.opts.ChromeDriverPath, port, svcOpts...)
	if err != nil {
		return fmt.Errorf("starting ChromeDriver %q: %w", s.opts.ChromeDriverPath, err)
	}
	s.service = svc
	s.localAddr = fmt.Sprintf("http://127.0.0.1:%d/wd/hub", port)
	glog.Infof("ChromeDriver listening on %s", s.localAddr)
	return nil
}

// Options returns the options the suite was set up with.
func (s *Suite) Options() Options { return s.opts }

// Runner returns the runner collecting the results of every test.
func (s *Suite) Runner() *eyes.Runner { return s.runner }

// Configuration returns a copy of the configuration shared by the tests.
func (s *Suite) Configuration() eyes.Configuration { return s.conf.Clone() }

// NewTest creates the Eyes and the browser session of one test.
func (s *Suite) NewTest(ctx context.Context) (*Test, error) {
	e := eyes.New(s.runner)
	e.SetConfiguration(s.conf)

	caps := selenium.Capabilities{"browserName": s.opts.BrowserName}
	var addr string
	switch s.opts.Execution {
	case ExecutionCloud:
		u, err := eyes.ExecutionCloudURL(ctx, s.conf)
		if err != nil {
			return nil, err
		}
		ep, err := cloud.ParseEndpoint(u)
		if err != nil {
			return nil, err
		}
		healing := s.opts.SelfHealing
		vendor := cloud.Capabilities{
			SessionName:    s.opts.SessionName,
			UseSelfHealing: &healing,
			APIKey:         s.conf.APIKey,
			EyesServerURL:  s.conf.ServerURL,
			TunnelID:       s.opts.TunnelID,
		}
		if err := vendor.Merge(caps); err != nil {
			return nil, err
		}
		addr = ep.Addr()
	case ExecutionLocal:
		if s.opts.BrowserName == "chrome" {
			args := []string{"--no-sandbox"}
			if s.opts.Headless {
				args = append(args, "--headless")
			}
			caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
		}
		caps.SetLogLevel(log.Browser, log.Severe)
		addr = s.localAddr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd, err := s.newRemote(caps, addr)
	if err != nil {
		return nil, fmt.Errorf("opening %s session at %s: %w", s.opts.BrowserName, addr, err)
	}
	glog.V(1).Infof("browser session opened at %s", addr)
	return &Test{Eyes: e, WD: wd, suite: s}, nil
}

// Run runs body as one test between NewTest and Test.Teardown. An error from
// body fails the test; teardown runs whatever body returns. A panic in body
// also fails the test and is re-raised once the test is torn down.
func (s *Suite) Run(ctx context.Context, name string, body func(context.Context, *Test) error) error {
	t, err := s.NewTest(ctx)
	if err != nil {
		return fmt.Errorf("%s: setup: %w", name, err)
	}
	t.Name = name
	defer func() {
		if r := recover(); r != nil {
			t.Fail()
			if err := t.Teardown(ctx); err != nil {
				glog.Errorf("%s: teardown after panic: %v", name, err)
			}
			panic(r)
		}
	}()

	bodyErr := body(ctx, t)
	if bodyErr != nil {
		t.Fail()
		glog.Errorf("%s: %v", name, bodyErr)
	}
	if err := t.Teardown(ctx); err != nil {
		if bodyErr != nil {
			return errors.Join(bodyErr, fmt.Errorf("%s: teardown: %w", name, err))
		}
		return fmt.Errorf("%s: teardown: %w", name, err)
	}
	return bodyErr
}

// Teardown collects the results of every test, writes them to w as YAML and
// stops the local ChromeDriver. Only the first call does anything; later
// calls return what the first one did.
func (s *Suite) Teardown(ctx context.Context, w io.Writer) (*eyes.TestResultsSummary, error) {
	s.teardownOnce.Do(func() {
		var errs []error
		summary, err := s.runner.GetAllTestResults(ctx, false)
		if err != nil {
			errs = append(errs, err)
		}
		s.summary = summary
		if summary != nil {
			glog.Info(summary)
			if w != nil {
				if err := summary.WriteYAML(w); err != nil {
					errs = append(errs, fmt.Errorf("writing results: %w", err))
				}
			}
		}
		if s.service != nil {
			if err := s.service.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stopping ChromeDriver: %w", err))
			}
		}
		s.teardownErr = errors.Join(errs...)
	})
	return s.summary, s.teardownErr
}
