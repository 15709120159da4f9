package eyes

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// BrowserType is a desktop browser rendered by the Ultrafast Grid.
type BrowserType string

// Browsers available for rendering.
const (
	Chrome  BrowserType = "chrome"
	Firefox BrowserType = "firefox"
	Safari  BrowserType = "safari"
	Edge    BrowserType = "edgechromium"
)

// ScreenOrientation is the orientation of an emulated device.
type ScreenOrientation string

// Device orientations.
const (
	Portrait  ScreenOrientation = "portrait"
	Landscape ScreenOrientation = "landscape"
)

// DeviceName names a Chrome mobile emulation device.
type DeviceName string

// Emulated devices. Other devices are accepted by the server by name.
const (
	Pixel2    DeviceName = "Pixel 2"
	Pixel4    DeviceName = "Pixel 4"
	Nexus10   DeviceName = "Nexus 10"
	IPhoneX   DeviceName = "iPhone X"
	GalaxyS20 DeviceName = "Galaxy S20"
)

const (
	// DefaultServerURL is the public Eyes server.
	DefaultServerURL = "https://eyesapi.applitools.com"
	// DefaultExecutionCloudURL is the public execution cloud WebDriver
	// endpoint.
	DefaultExecutionCloudURL = "https://exec-wus.applitools.com"

	// APIKeyEnv, ServerURLEnv and ExecutionCloudURLEnv are the environment
	// variables read by NewConfiguration.
	APIKeyEnv            = "APPLITOOLS_API_KEY"
	ServerURLEnv         = "APPLITOOLS_SERVER_URL"
	ExecutionCloudURLEnv = "APPLITOOLS_EXECUTION_CLOUD_URL"
)

// RectangleSize is a width and height in CSS pixels.
type RectangleSize struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsEmpty reports whether both dimensions are zero.
func (r RectangleSize) IsEmpty() bool {
	return r.Width == 0 && r.Height == 0
}

func (r RectangleSize) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// BatchInfo groups the tests of one run on the Eyes dashboard.
type BatchInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`
}

// NewBatchInfo returns a batch with a fresh identifier.
func NewBatchInfo(name string) *BatchInfo {
	return &BatchInfo{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now().UTC(),
	}
}

// DesktopBrowserInfo is a desktop browser rendered at a fixed viewport.
type DesktopBrowserInfo struct {
	Width  int         `json:"width" yaml:"width"`
	Height int         `json:"height" yaml:"height"`
	Name   BrowserType `json:"name" yaml:"name"`
}

// DeviceInfo is an emulated mobile device.
type DeviceInfo struct {
	Name        DeviceName        `json:"deviceName" yaml:"deviceName"`
	Orientation ScreenOrientation `json:"screenOrientation" yaml:"screenOrientation"`
}

// RenderTarget is one rendering environment: exactly one of Desktop or
// Device is set.
type RenderTarget struct {
	Desktop *DesktopBrowserInfo `json:"desktop,omitempty" yaml:"desktop,omitempty"`
	Device  *DeviceInfo         `json:"device,omitempty" yaml:"device,omitempty"`
}

func (t RenderTarget) String() string {
	switch {
	case t.Desktop != nil:
		return fmt.Sprintf("%s %dx%d", t.Desktop.Name, t.Desktop.Width, t.Desktop.Height)
	case t.Device != nil:
		return fmt.Sprintf("%s (%s)", t.Device.Name, t.Device.Orientation)
	}
	return "default"
}

// Configuration holds the settings shared by every Eyes instance of a run.
//
// A Configuration is copied into an Eyes by SetConfiguration, so the value a
// suite builds once is never changed by the tests that use it.
type Configuration struct {
	Batch        *BatchInfo
	AppName      string
	TestName     string
	ViewportSize RectangleSize

	Browsers []DesktopBrowserInfo
	Devices  []DeviceInfo

	// ServerURL is the Eyes server. APIKey authenticates against it and
	// against the execution cloud.
	ServerURL string
	APIKey    string
	// ExecutionCloudURL overrides DefaultExecutionCloudURL.
	ExecutionCloudURL string
}

// NewConfiguration returns a configuration populated from the environment.
func NewConfiguration() Configuration {
	c := Configuration{
		ServerURL:         os.Getenv(ServerURLEnv),
		APIKey:            os.Getenv(APIKeyEnv),
		ExecutionCloudURL: os.Getenv(ExecutionCloudURLEnv),
	}
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	return c
}

// AddBrowser adds a desktop browser rendered at width x height.
func (c *Configuration) AddBrowser(width, height int, name BrowserType) {
	c.Browsers = append(c.Browsers, DesktopBrowserInfo{Width: width, Height: height, Name: name})
}

// AddDeviceEmulation adds an emulated mobile device.
func (c *Configuration) AddDeviceEmulation(name DeviceName, orientation ScreenOrientation) {
	c.Devices = append(c.Devices, DeviceInfo{Name: name, Orientation: orientation})
}

// Targets lists the render targets, browsers first. It is empty when no
// browser or device was added.
func (c Configuration) Targets() []RenderTarget {
	var targets []RenderTarget
	for i := range c.Browsers {
		b := c.Browsers[i]
		targets = append(targets, RenderTarget{Desktop: &b})
	}
	for i := range c.Devices {
		d := c.Devices[i]
		targets = append(targets, RenderTarget{Device: &d})
	}
	return targets
}

// Clone returns a deep copy of c.
func (c Configuration) Clone() Configuration {
	out := c
	if c.Batch != nil {
		b := *c.Batch
		out.Batch = &b
	}
	if c.Browsers != nil {
		out.Browsers = append([]DesktopBrowserInfo(nil), c.Browsers...)
	}
	if c.Devices != nil {
		out.Devices = append([]DeviceInfo(nil), c.Devices...)
	}
	return out
}
