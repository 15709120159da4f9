package suite

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wanmail/eyes"
)

// GridMode selects where screenshots are rendered.
type GridMode string

// Rendering modes.
const (
	// GridLocal renders in the test browser with a classic runner.
	GridLocal GridMode = "local"
	// GridCloud renders every configured browser and device in the
	// Ultrafast Grid.
	GridCloud GridMode = "cloud"
)

// ExecutionMode selects where the browser runs.
type ExecutionMode string

// Browser locations.
const (
	ExecutionLocal ExecutionMode = "local"
	ExecutionCloud ExecutionMode = "cloud"
)

// TeardownStatus selects the status reported to the execution cloud when a
// test ends.
type TeardownStatus string

const (
	// StatusFromOutcome reports "Passed" or "Failed" depending on the test.
	StatusFromOutcome TeardownStatus = "outcome-derived"
	// StatusFixed always reports Options.FixedStatus.
	StatusFixed TeardownStatus = "fixed"
)

// Options configures a Suite.
type Options struct {
	Grid           GridMode       `mapstructure:"grid"`
	Execution      ExecutionMode  `mapstructure:"execution"`
	TeardownStatus TeardownStatus `mapstructure:"teardown_status"`
	FixedStatus    string         `mapstructure:"fixed_status"`

	// Concurrency is the visual grid runner concurrency.
	Concurrency int    `mapstructure:"concurrency"`
	BatchName   string `mapstructure:"batch_name"`
	AppName     string `mapstructure:"app_name"`
	BrowserName string `mapstructure:"browser_name"`
	SessionName string `mapstructure:"session_name"`
	SelfHealing bool   `mapstructure:"self_healing"`

	// Empty values fall back to the environment, see eyes.NewConfiguration.
	ServerURL         string `mapstructure:"server_url"`
	APIKey            string `mapstructure:"api_key"`
	ExecutionCloudURL string `mapstructure:"execution_cloud_url"`
	// TunnelID routes cloud browsers through an Applitools tunnel.
	TunnelID string `mapstructure:"tunnel_id"`

	// LocalAddr is an already running WebDriver endpoint. When it is empty
	// and ChromeDriverPath is set, ChromeDriver is started for the suite.
	LocalAddr        string `mapstructure:"local_addr"`
	ChromeDriverPath string `mapstructure:"chromedriver"`
	Headless         bool   `mapstructure:"headless"`
	FrameBuffer      bool   `mapstructure:"frame_buffer"`

	ElementTimeout time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// DefaultOptions returns the options of the NAB demo run: Ultrafast Grid
// rendering of a browser in the execution cloud.
func DefaultOptions() Options {
	return Options{
		Grid:           GridCloud,
		Execution:      ExecutionCloud,
		TeardownStatus: StatusFromOutcome,
		FixedStatus:    string(eyes.Failed),
		Concurrency:    5,
		BatchName:      "NAB Bank",
		AppName:        "NAB Bank",
		BrowserName:    "chrome",
		SessionName:    "Demo New",
		SelfHealing:    true,
		ElementTimeout: 10 * time.Second,
		PollInterval:   250 * time.Millisecond,
	}
}

// Validate reports the first inconsistent option.
func (o Options) Validate() error {
	switch o.Grid {
	case GridLocal, GridCloud:
	default:
		return fmt.Errorf("grid: %q is neither %q nor %q", o.Grid, GridLocal, GridCloud)
	}
	switch o.Execution {
	case ExecutionCloud:
	case ExecutionLocal:
		if o.LocalAddr == "" && o.ChromeDriverPath == "" {
			return fmt.Errorf("local execution needs local_addr or chromedriver")
		}
	default:
		return fmt.Errorf("execution: %q is neither %q nor %q", o.Execution, ExecutionLocal, ExecutionCloud)
	}
	switch o.TeardownStatus {
	case StatusFromOutcome:
	case StatusFixed:
		if o.FixedStatus == "" {
			return fmt.Errorf("teardown status %q needs fixed_status", StatusFixed)
		}
	default:
		return fmt.Errorf("teardown_status: %q is neither %q nor %q", o.TeardownStatus, StatusFromOutcome, StatusFixed)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	if o.BrowserName == "" {
		return fmt.Errorf("browser_name must be set")
	}
	if o.ElementTimeout <= 0 || o.PollInterval <= 0 {
		return fmt.Errorf("timeout (%v) and poll_interval (%v) must be positive", o.ElementTimeout, o.PollInterval)
	}
	return nil
}

// SetDefaults registers every option with v, so that environment variables
// are seen even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := DefaultOptions()
	v.SetDefault("grid", string(d.Grid))
	v.SetDefault("execution", string(d.Execution))
	v.SetDefault("teardown_status", string(d.TeardownStatus))
	v.SetDefault("fixed_status", d.FixedStatus)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("batch_name", d.BatchName)
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("browser_name", d.BrowserName)
	v.SetDefault("session_name", d.SessionName)
	v.SetDefault("self_healing", d.SelfHealing)
	v.SetDefault("server_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("execution_cloud_url", "")
	v.SetDefault("tunnel_id", "")
	v.SetDefault("local_addr", "")
	v.SetDefault("chromedriver", "")
	v.SetDefault("headless", false)
	v.SetDefault("frame_buffer", false)
	v.SetDefault("timeout", d.ElementTimeout.String())
	v.SetDefault("poll_interval", d.PollInterval.String())
}

// LoadOptions reads the options from v. Keys are read from the environment
// with v's prefix; the Eyes credentials are also read from their usual
// APPLITOOLS_ variables.
func LoadOptions(v *viper.Viper) (Options, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"api_key":             eyes.APIKeyEnv,
		"server_url":          eyes.ServerURLEnv,
		"execution_cloud_url": eyes.ExecutionCloudURLEnv,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Options{}, err
		}
	}

	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("decoding options: %w", err)
	}
	if err := o.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid options: %w", err)
	}
	return o, nil
}
