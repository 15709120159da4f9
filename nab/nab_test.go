package nab

import (
	"context"
	"errors"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wanmail/eyes"
	"github.com/wanmail/eyes/internal/eyestest"
	"github.com/wanmail/eyes/suite"
)

var live = flag.Bool("nab.live", false, "If true, run the scenario against the live NAB site in the execution cloud. Needs APPLITOOLS_API_KEY.")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, eyestest.LeakOptions()...)
}

func fastScenario() *Scenario {
	s := Default()
	s.Timeout = 500 * time.Millisecond
	s.Interval = 10 * time.Millisecond
	return s
}

// run executes the scenario in a suite backed by fakes serving p.
func run(t *testing.T, p eyestest.Page) (*eyestest.WebDriver, error) {
	t.Helper()
	server := eyestest.NewEyesServer()
	t.Cleanup(server.Close)
	browser := eyestest.NewWebDriver(p)
	t.Cleanup(browser.Close)

	opts := suite.DefaultOptions()
	opts.ServerURL = server.URL
	opts.APIKey = "nab-key"
	opts.ExecutionCloudURL = browser.Addr()
	s, err := suite.Setup(opts)
	require.NoError(t, err)

	runErr := s.Run(context.Background(), TestName, fastScenario().Run)
	_, err = s.Teardown(context.Background(), nil)
	require.NoError(t, err)
	return browser, runErr
}

// steps keeps the commands that show the progress of the scenario.
func steps(browser *eyestest.WebDriver) []string {
	var out []string
	for _, c := range browser.Log() {
		switch c {
		case "newSession", "capabilities", "status":
			continue
		}
		out = append(out, c)
	}
	return out
}

func index(log []string, cmd string, last bool) int {
	found := -1
	for i, c := range log {
		if c == cmd {
			found = i
			if !last {
				break
			}
		}
	}
	return found
}

func queriedSelectors(browser *eyestest.WebDriver) []string {
	var out []string
	for _, c := range browser.Commands() {
		if c.String() == "execute:query" && len(c.Args) > 1 {
			s, _ := c.Args[1].(string)
			out = append(out, s)
		}
	}
	return out
}

func endStatus(browser *eyestest.WebDriver) string {
	for _, c := range browser.Commands() {
		if c.String() == "execute:endTest" && len(c.Args) > 0 {
			m, _ := c.Args[0].(map[string]interface{})
			s, _ := m["status"].(string)
			return s
		}
	}
	return ""
}

func TestScenarioPasses(t *testing.T) {
	browser, err := run(t, eyestest.NABPage())
	require.NoError(t, err)

	want := []string{
		"execute:startTest",
		"get",
		"findElement",
		"execute:query",
		"displayed",
		"execute:setId",
		"execute:query",
		"displayed",
		"execute:endTest",
		"closeWindow",
	}
	if diff := cmp.Diff(want, steps(browser)); diff != "" {
		t.Errorf("scenario commands diff (-want/+got):\n%s", diff)
	}
	assert.Equal(t, []string{"#Search", "#aaa"}, queriedSelectors(browser))
	assert.Equal(t, URL, browser.CurrentURL())
	assert.Equal(t, "aaa", browser.Page().Children[0].ID)
	assert.Equal(t, string(eyes.Passed), endStatus(browser))
}

func TestScenarioWaitsForHost(t *testing.T) {
	p := eyestest.NABPage()
	p.HostAfter = 4
	browser, err := run(t, p)
	require.NoError(t, err)

	log := steps(browser)
	assert.Equal(t, 5, browser.Count("findElement"))
	assert.Less(t, index(log, "findElement", true), index(log, "execute:query", false),
		"shadow root queried before the host existed: %v", log)
}

func TestScenarioWaitsForRenamedElement(t *testing.T) {
	p := eyestest.NABPage()
	browser, err := run(t, p)
	require.NoError(t, err)
	assert.Equal(t, 1, browser.Count("execute:setId"))
	assert.Less(t, index(steps(browser), "execute:setId", false), index(steps(browser), "execute:query", true))
}

func TestScenarioSearchHidden(t *testing.T) {
	p := eyestest.NABPage()
	p.Children[0].Displayed = false
	browser, err := run(t, p)

	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr), "Run returned %v, want an *AssertionError", err)
	assert.Equal(t, "Element is present on the page", aerr.Message)
	assert.Equal(t, "#Search", aerr.Selector)
	assert.Zero(t, browser.Count("execute:setId"), "no step runs after a failed check")
	assert.Equal(t, string(eyes.Failed), endStatus(browser))
	assert.Equal(t, 1, browser.Count("closeWindow"))
}

func TestScenarioNoShadowRoot(t *testing.T) {
	p := eyestest.NABPage()
	p.ShadowRoot = false
	browser, err := run(t, p)

	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr), "Run returned %v, want an *AssertionError", err)
	assert.Equal(t, "Element is present on the page", aerr.Message)
	assert.Zero(t, browser.Count("execute:setId"))
}

func TestScenarioRenamedHidden(t *testing.T) {
	p := eyestest.NABPage()
	p.HideOnRename = true
	browser, err := run(t, p)

	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr), "Run returned %v, want an *AssertionError", err)
	assert.Equal(t, "Element should be present on the page", aerr.Message)
	assert.Equal(t, "#aaa", aerr.Selector)
	assert.Equal(t, 1, browser.Count("execute:setId"))
	assert.Equal(t, 1, browser.Count("execute:endTest"))
	assert.Equal(t, 1, browser.Count("closeWindow"))
}

func TestScenarioHostNeverAppears(t *testing.T) {
	p := eyestest.NABPage()
	p.HostTag = "other-tool"
	browser, err := run(t, p)
	require.Error(t, err)
	assert.Zero(t, browser.Count("execute:query"))
	assert.Equal(t, 1, browser.Count("closeWindow"))
}

func TestLive(t *testing.T) {
	if !*live {
		t.Skip("Skipping the live NAB scenario. Enable via -nab.live")
	}
	if os.Getenv(eyes.APIKeyEnv) == "" {
		t.Fatalf("%s is required.", eyes.APIKeyEnv)
	}
	if testing.Verbose() {
		eyes.SetDebug(true)
	}

	s, err := suite.Setup(suite.DefaultOptions())
	require.NoError(t, err)
	runErr := s.Run(context.Background(), TestName, Default().Run)
	summary, err := s.Teardown(context.Background(), os.Stdout)
	require.NoError(t, err)
	require.NoError(t, runErr)
	t.Log(summary)
}
