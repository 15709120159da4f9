package eyes_test

import (
	"context"
	"fmt"
	"os"

	"github.com/tebeka/selenium"

	"github.com/wanmail/eyes"
)

// This example opens a visual test around a browser running in the execution
// cloud, navigates to a page and prints the results of the run.
//
// If you want to actually run this example:
//
//  1. Set APPLITOOLS_API_KEY.
//  2. Add an Output comment at the bottom of the function.
//  3. Run:
//     go test -test.run=Example$ github.com/wanmail/eyes
func Example() {
	ctx := context.Background()
	conf := eyes.NewConfiguration()
	conf.Batch = eyes.NewBatchInfo("Example batch")

	addr, err := eyes.ExecutionCloudURL(ctx, conf)
	if err != nil {
		panic(err) // panic is used only as an example and is not otherwise recommended.
	}
	caps := selenium.Capabilities{
		"browserName":            "chrome",
		"applitools:apiKey":      conf.APIKey,
		"applitools:sessionName": "Example",
	}
	wd, err := selenium.NewRemote(caps, addr)
	if err != nil {
		panic(err)
	}
	defer wd.Quit()

	runner := eyes.NewClassicRunner()
	e := eyes.New(runner)
	e.SetConfiguration(conf)
	if wd, err = e.Open(ctx, wd, "Example App", "Front page"); err != nil {
		panic(err)
	}
	if err := wd.Get("https://example.com"); err != nil {
		panic(err)
	}
	if _, err := e.Close(ctx); err != nil {
		panic(err)
	}

	summary, err := runner.GetAllTestResults(ctx, false)
	if err != nil {
		panic(err)
	}
	if err := summary.WriteYAML(os.Stdout); err != nil {
		panic(err)
	}
	fmt.Println(summary.Passed == len(summary.Results))
}
