/*
Package eyes is a client for the Applitools Eyes visual testing service,
used around browser sessions driven with github.com/tebeka/selenium.

An Eyes is opened around a WebDriver session for one test and closed when the
test ends. Its results go to the Runner it was created with: a classic runner
renders in the browser of the test, a visual grid runner renders every
configured browser and device in the Ultrafast Grid.

Example usage:

	runner := eyes.NewVisualGridRunner(5)
	conf := eyes.NewConfiguration()
	conf.Batch = eyes.NewBatchInfo("Nightly")
	conf.AddBrowser(800, 600, eyes.Chrome)
	conf.AddDeviceEmulation(eyes.Pixel2, eyes.Portrait)

	e := eyes.New(runner)
	e.SetConfiguration(conf)
	wd, err := e.Open(ctx, wd, "My App", "Login page")
	if err != nil {
		return err
	}
	// ... drive the browser through wd ...
	if _, err := e.Close(ctx); err != nil {
		return err
	}

	summary, err := runner.GetAllTestResults(ctx, true)

The API key is read from APPLITOOLS_API_KEY. Subpackage cloud drives
browsers in the execution cloud, subpackage shadow reaches into shadow DOM,
and subpackage suite ties a run of several tests together.
*/
package eyes
