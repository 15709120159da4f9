// Package cloud interacts with the Applitools execution cloud, a hosted
// WebDriver endpoint that runs the browser on behalf of the test.
package cloud

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/tebeka/selenium"
)

// Endpoint is a WebDriver endpoint split into the parts a remote session
// needs.
type Endpoint struct {
	// Protocol is the URL scheme without the trailing colon.
	Protocol string
	Hostname string
	Port     int
	Path     string
}

// ParseEndpoint splits raw into an Endpoint. A missing port is the scheme's
// default port. The path is kept as given, without a trailing slash, so an
// endpoint served at the root has an empty Path.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", raw, err)
	}
	ep := Endpoint{Protocol: strings.ToLower(u.Scheme), Hostname: u.Hostname(), Path: u.Path}
	switch ep.Protocol {
	case "http":
		ep.Port = 80
	case "https":
		ep.Port = 443
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unsupported protocol %q", raw, u.Scheme)
	}
	if ep.Hostname == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing host", raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("endpoint %q: invalid port %q", raw, p)
		}
		ep.Port = port
	}
	ep.Path = strings.TrimRight(ep.Path, "/")
	return ep, nil
}

// Addr returns the URL to use for driving a remote web browser.
func (e Endpoint) Addr() string {
	host := net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
	return fmt.Sprintf("%s://%s%s", e.Protocol, host, e.Path)
}

func (e Endpoint) String() string { return e.Addr() }

// Capabilities are the vendor options the execution cloud reads from the
// new session request.
type Capabilities struct {
	// SessionName labels the session on the dashboard.
	SessionName string `json:"applitools:sessionName,omitempty"`
	// UseSelfHealing lets the cloud repair locators that stopped matching.
	UseSelfHealing *bool `json:"applitools:useSelfHealing,omitempty"`
	// APIKey authenticates the session.
	APIKey string `json:"applitools:apiKey,omitempty"`
	// EyesServerURL points the session at a dedicated Eyes server.
	EyesServerURL string `json:"applitools:eyesServerUrl,omitempty"`
	// TunnelID routes the browser through an Applitools tunnel.
	TunnelID string `json:"applitools:tunnelId,omitempty"`
}

// ToMap returns the capabilities in a key/value structure.
func (c *Capabilities) ToMap() (map[string]interface{}, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Merge copies the vendor options into caps.
func (c *Capabilities) Merge(caps selenium.Capabilities) error {
	m, err := c.ToMap()
	if err != nil {
		return err
	}
	for k, v := range m {
		caps[k] = v
	}
	return nil
}
