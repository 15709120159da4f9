// Package nab checks the NAB locations page: the search field in the shadow
// DOM of the locations tool is displayed, and stays displayed after its id
// is changed by a script.
package nab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"

	"github.com/wanmail/eyes/shadow"
	"github.com/wanmail/eyes/suite"
)

// Page and test constants of the scenario.
const (
	URL       = "https://www.nab.com.au/locations?return"
	AppName   = "NAB Bank"
	TestName  = "NAB Execution Cloud Demo- Non Eyes Test"
	HostTag   = "nab-locations-tool"
	SearchID  = "Search"
	RenamedID = "aaa"
)

// AssertionError is a failed check of the scenario.
type AssertionError struct {
	Message string
	// Selector is the shadow DOM selector that was checked.
	Selector string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s is not displayed", e.Message, e.Selector)
}

// Scenario is the locations page check.
type Scenario struct {
	URL       string
	HostTag   string
	SearchID  string
	RenamedID string
	AppName   string
	TestName  string

	// Timeout bounds every wait; Interval is the polling period.
	Timeout  time.Duration
	Interval time.Duration
}

// Default returns the scenario against the live NAB site.
func Default() *Scenario {
	return &Scenario{
		URL:       URL,
		HostTag:   HostTag,
		SearchID:  SearchID,
		RenamedID: RenamedID,
		AppName:   AppName,
		TestName:  TestName,
		Timeout:   10 * time.Second,
		Interval:  250 * time.Millisecond,
	}
}

// Run executes the scenario in t. The first failed check ends it with an
// *AssertionError.
func (s *Scenario) Run(ctx context.Context, t *suite.Test) error {
	if err := t.Start(s.TestName); err != nil {
		return err
	}
	if err := t.WD.Get(s.URL); err != nil {
		return fmt.Errorf("loading %s: %w", s.URL, err)
	}
	if err := t.OpenEyes(ctx, s.AppName, s.TestName); err != nil {
		return err
	}

	// The custom element is attached by script, after the page loads.
	host, err := shadow.WaitForExist(t.WD, selenium.ByCSSSelector, s.HostTag, s.Timeout, s.Interval)
	if err != nil {
		return err
	}

	search := "#" + s.SearchID
	// A missing element counts as not displayed.
	displayed := false
	elem, err := shadow.FindElement(t.WD, host, search)
	switch {
	case errors.Is(err, shadow.ErrNotFound):
	case err != nil:
		return fmt.Errorf("finding %s in %s: %w", search, s.HostTag, err)
	default:
		if displayed, err = elem.IsDisplayed(); err != nil {
			return err
		}
	}
	glog.Infof("isElementDisplayed - %t", displayed)
	if !displayed {
		return &AssertionError{Message: "Element is present on the page", Selector: search}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	renamed, err := shadow.SetID(t.WD, s.HostTag, s.SearchID, s.RenamedID)
	if err != nil {
		return err
	}
	if !renamed {
		glog.Warningf("%s was not renamed to #%s", search, s.RenamedID)
	}

	target := "#" + s.RenamedID
	_, displayed, err = shadow.WaitForDisplayed(t.WD, host, target, s.Timeout, s.Interval)
	if err != nil && !errors.Is(err, shadow.ErrNotFound) {
		return fmt.Errorf("waiting for %s in %s: %w", target, s.HostTag, err)
	}
	glog.Infof("isElementDisplayed - %t", displayed)
	if !displayed {
		return &AssertionError{Message: "Element should be present on the page", Selector: target}
	}
	return nil
}
