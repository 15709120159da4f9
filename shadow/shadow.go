// Package shadow finds elements inside the open shadow roots of custom
// elements, which WebDriver locators do not reach.
package shadow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
)

// Scripts run in the page. The first argument is always the shadow host.
const (
	QueryScript    = "return arguments[0].shadowRoot ? arguments[0].shadowRoot.querySelector(arguments[1]) : null"
	QueryAllScript = "return arguments[0].shadowRoot ? Array.from(arguments[0].shadowRoot.querySelectorAll(arguments[1])) : null"

	// SetIDScript renames the shadow child with id arguments[1] of the first
	// element matching the selector arguments[0] to arguments[2]. It returns
	// whether a child was renamed.
	SetIDScript = `var host = document.querySelector(arguments[0]);
if (!host || !host.shadowRoot) { return false; }
var el = host.shadowRoot.getElementById(arguments[1]);
if (!el) { return false; }
el.id = arguments[2];
return true;`
)

// ErrNotFound is returned when the host has no shadow root or nothing in it
// matches.
var ErrNotFound = errors.New("shadow: no such element")

// isNull reports whether the script reply carries no value.
func isNull(reply []byte) (bool, error) {
	v := new(struct{ Value json.RawMessage })
	if err := json.Unmarshal(reply, v); err != nil {
		return false, fmt.Errorf("decoding script reply: %w", err)
	}
	trimmed := bytes.TrimSpace(v.Value)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")), nil
}

// FindElement returns the first element matching css in the shadow root of
// host.
func FindElement(wd selenium.WebDriver, host selenium.WebElement, css string) (selenium.WebElement, error) {
	reply, err := wd.ExecuteScriptRaw(QueryScript, []interface{}{host, css})
	if err != nil {
		return nil, fmt.Errorf("querying shadow root for %q: %w", css, err)
	}
	if null, err := isNull(reply); err != nil {
		return nil, err
	} else if null {
		return nil, fmt.Errorf("%q: %w", css, ErrNotFound)
	}
	return wd.DecodeElement(reply)
}

// FindElements returns every element matching css in the shadow root of
// host.
func FindElements(wd selenium.WebDriver, host selenium.WebElement, css string) ([]selenium.WebElement, error) {
	reply, err := wd.ExecuteScriptRaw(QueryAllScript, []interface{}{host, css})
	if err != nil {
		return nil, fmt.Errorf("querying shadow root for %q: %w", css, err)
	}
	if null, err := isNull(reply); err != nil {
		return nil, err
	} else if null {
		return nil, fmt.Errorf("%q: %w", css, ErrNotFound)
	}
	return wd.DecodeElements(reply)
}

// WaitForExist polls the document until an element located by (by, value)
// exists and returns it.
func WaitForExist(wd selenium.WebDriver, by, value string, timeout, interval time.Duration) (selenium.WebElement, error) {
	var found selenium.WebElement
	cond := func(wd selenium.WebDriver) (bool, error) {
		elem, err := wd.FindElement(by, value)
		if err != nil {
			glog.V(2).Infof("waiting for %s=%q: %v", by, value, err)
			return false, nil
		}
		found = elem
		return true, nil
	}
	if err := wd.WaitWithTimeoutAndInterval(cond, timeout, interval); err != nil {
		return nil, fmt.Errorf("element %s=%q did not appear within %v: %w", by, value, timeout, err)
	}
	return found, nil
}

// WaitForDisplayed polls until the shadow child of host matching css exists
// and is displayed. When the wait runs out the returned element and flag
// describe the last observation: a nil element if it was never found.
func WaitForDisplayed(wd selenium.WebDriver, host selenium.WebElement, css string, timeout, interval time.Duration) (selenium.WebElement, bool, error) {
	var (
		last      selenium.WebElement
		displayed bool
		condErr   error
	)
	cond := func(wd selenium.WebDriver) (bool, error) {
		elem, err := FindElement(wd, host, css)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err == nil {
			last = elem
			displayed, err = elem.IsDisplayed()
		}
		if err != nil {
			condErr = err
			return false, err
		}
		return displayed, nil
	}
	err := wd.WaitWithTimeoutAndInterval(cond, timeout, interval)
	switch {
	case err == nil:
		return last, true, nil
	case condErr != nil:
		return nil, false, condErr
	case last == nil:
		return nil, false, fmt.Errorf("%q never appeared: %w", css, ErrNotFound)
	}
	// Timed out on an element that exists but is hidden.
	return last, false, nil
}

// SetID renames the shadow child fromID of the host matching hostCSS to toID.
// It reports whether a child was renamed; a missing host or child is not an
// error.
func SetID(wd selenium.WebDriver, hostCSS, fromID, toID string) (bool, error) {
	v, err := wd.ExecuteScript(SetIDScript, []interface{}{hostCSS, fromID, toID})
	if err != nil {
		return false, fmt.Errorf("renaming #%s to #%s in %s: %w", fromID, toID, hostCSS, err)
	}
	renamed, _ := v.(bool)
	glog.V(1).Infof("rename #%s -> #%s in %s: %t", fromID, toID, hostCSS, renamed)
	return renamed, nil
}
