package cloud

import (
	"fmt"

	"github.com/tebeka/selenium"
)

// Scripts intercepted by the execution cloud instead of being run in the
// page.
const (
	StartTestScript = "applitools:startTest"
	EndTestScript   = "applitools:endTest"
)

// StartTest tells the execution cloud that the test called name begins.
func StartTest(wd selenium.WebDriver, name string) error {
	args := []interface{}{map[string]interface{}{"testName": name}}
	if _, err := wd.ExecuteScript(StartTestScript, args); err != nil {
		return fmt.Errorf("signalling start of %q: %w", name, err)
	}
	return nil
}

// EndTest tells the execution cloud that the current test finished with
// status, e.g. "Passed" or "Failed".
func EndTest(wd selenium.WebDriver, status string) error {
	args := []interface{}{map[string]interface{}{"status": status}}
	if _, err := wd.ExecuteScript(EndTestScript, args); err != nil {
		return fmt.Errorf("signalling end with status %q: %w", status, err)
	}
	return nil
}
