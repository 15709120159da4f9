// Package eyestest provides in-process fakes of the services a visual test
// talks to: a W3C WebDriver endpoint serving a page with a shadow DOM, and an
// Eyes server. Both record every request so tests can check ordering.
package eyestest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// PathPrefix is the path under which the fake WebDriver endpoint serves.
const PathPrefix = "/wd/hub"

// W3C element reference key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

const hostID = "host-0"

// Element is a child of the shadow root.
type Element struct {
	ID        string
	Displayed bool
	// HiddenFor makes the element report not displayed for that many checks
	// before Displayed applies.
	HiddenFor int
}

// Page is the document served by the fake browser: a single custom element,
// possibly carrying an open shadow root.
type Page struct {
	HostTag    string
	ShadowRoot bool
	Children   []Element
	// HostAfter is the number of document lookups that fail before the host
	// element is attached.
	HostAfter int
	// HideOnRename hides an element once its id changes.
	HideOnRename bool
}

// NABPage returns the page of the locations tool: a nab-locations-tool
// element whose shadow root holds a displayed #Search field.
func NABPage() Page {
	return Page{
		HostTag:    "nab-locations-tool",
		ShadowRoot: true,
		Children:   []Element{{ID: "Search", Displayed: true}},
	}
}

// Command is one request received by the fake WebDriver.
type Command struct {
	Name   string
	Detail string
	Args   []interface{}
}

func (c Command) String() string {
	if c.Detail == "" {
		return c.Name
	}
	return c.Name + ":" + c.Detail
}

// WebDriver is a fake W3C WebDriver remote end.
type WebDriver struct {
	*httptest.Server

	// Reported in the session capabilities.
	BrowserName, BrowserVersion, PlatformName string

	mu       sync.Mutex
	page     Page
	lookups  int
	sessions int
	caps     []map[string]interface{}
	log      []Command
	url      string
	failOn   map[string]string
}

// NewWebDriver starts a fake WebDriver endpoint serving p. Close it when done.
func NewWebDriver(p Page) *WebDriver {
	wd := &WebDriver{
		BrowserName:    "chrome",
		BrowserVersion: "120.0.6099.109",
		PlatformName:   "linux",
		page:           p,
		failOn:         make(map[string]string),
	}
	wd.Server = httptest.NewServer(http.StripPrefix(PathPrefix, http.HandlerFunc(wd.handler)))
	return wd
}

// Addr returns the executor URL to hand to selenium.NewRemote.
func (wd *WebDriver) Addr() string { return wd.URL + PathPrefix }

// FailOn makes the command named as in Command.String answer with a
// WebDriver error carrying message.
func (wd *WebDriver) FailOn(command, message string) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.failOn[command] = message
}

// Log returns the commands received so far as "name" or "name:detail".
func (wd *WebDriver) Log() []string {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	out := make([]string, len(wd.log))
	for i, c := range wd.log {
		out[i] = c.String()
	}
	return out
}

// Commands returns the commands received so far.
func (wd *WebDriver) Commands() []Command {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]Command(nil), wd.log...)
}

// Count returns how many received commands print as command.
func (wd *WebDriver) Count(command string) int {
	n := 0
	for _, c := range wd.Log() {
		if c == command {
			n++
		}
	}
	return n
}

// Capabilities returns the capabilities requested by every new session.
func (wd *WebDriver) Capabilities() []map[string]interface{} {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]map[string]interface{}(nil), wd.caps...)
}

// CurrentURL returns the last page navigated to.
func (wd *WebDriver) CurrentURL() string {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return wd.url
}

// Page returns the current state of the page.
func (wd *WebDriver) Page() Page {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	p := wd.page
	p.Children = append([]Element(nil), wd.page.Children...)
	return p
}

func reply(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}

func replyError(w http.ResponseWriter, status int, code, message string) {
	reply(w, status, map[string]string{"error": code, "message": message})
}

func elementRef(id string) map[string]string {
	return map[string]string{elementKey: id}
}

// route splits /session/{id}/rest into the command name and its parameters.
func route(method, path string) (name string, elem string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/status":
		return "status", ""
	case len(parts) == 1 && parts[0] == "session" && method == http.MethodPost:
		return "newSession", ""
	case len(parts) == 2 && method == http.MethodGet:
		return "capabilities", ""
	case len(parts) == 2 && method == http.MethodDelete:
		return "deleteSession", ""
	case len(parts) < 3:
		return "", ""
	}
	rest := parts[2:]
	switch {
	case rest[0] == "url" && method == http.MethodPost:
		return "get", ""
	case rest[0] == "window" && method == http.MethodDelete:
		return "closeWindow", ""
	case rest[0] == "element" && len(rest) == 1:
		return "findElement", ""
	case rest[0] == "elements" && len(rest) == 1:
		return "findElements", ""
	case rest[0] == "element" && len(rest) == 3 && rest[2] == "displayed":
		return "displayed", rest[1]
	case rest[0] == "execute":
		return "execute", ""
	}
	return "", ""
}

// classify names the scripts the fake understands.
func classify(script string) string {
	switch {
	case strings.HasPrefix(script, "applitools:startTest"):
		return "startTest"
	case strings.HasPrefix(script, "applitools:endTest"):
		return "endTest"
	case strings.Contains(script, "getElementById"):
		return "setId"
	case strings.Contains(script, "querySelectorAll"):
		return "queryAll"
	case strings.Contains(script, "shadowRoot.querySelector"):
		return "query"
	}
	return "other"
}

func (wd *WebDriver) handler(w http.ResponseWriter, r *http.Request) {
	name, elem := route(r.Method, r.URL.Path)
	if name == "" {
		replyError(w, http.StatusNotFound, "unknown command", r.Method+" "+r.URL.Path)
		return
	}
	var body map[string]interface{}
	if r.Body != nil && r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			replyError(w, http.StatusBadRequest, "invalid argument", err.Error())
			return
		}
	}

	wd.mu.Lock()
	defer wd.mu.Unlock()

	cmd := Command{Name: name}
	if name == "execute" {
		script, _ := body["script"].(string)
		cmd.Detail = classify(script)
		cmd.Args, _ = body["args"].([]interface{})
	}
	wd.log = append(wd.log, cmd)
	if msg, ok := wd.failOn[cmd.String()]; ok {
		replyError(w, http.StatusInternalServerError, "unknown error", msg)
		return
	}

	switch name {
	case "status":
		reply(w, http.StatusOK, map[string]interface{}{"ready": true, "message": "fake"})
	case "newSession":
		wd.sessions++
		wd.caps = append(wd.caps, requestedCapabilities(body))
		reply(w, http.StatusOK, map[string]interface{}{
			"sessionId":    fmt.Sprintf("session-%d", wd.sessions),
			"capabilities": wd.sessionCapabilities(),
		})
	case "capabilities":
		reply(w, http.StatusOK, wd.sessionCapabilities())
	case "deleteSession", "closeWindow":
		reply(w, http.StatusOK, nil)
	case "get":
		wd.url, _ = body["url"].(string)
		reply(w, http.StatusOK, nil)
	case "findElement", "findElements":
		wd.find(w, name == "findElements", body)
	case "displayed":
		wd.displayed(w, elem)
	case "execute":
		wd.execute(w, cmd)
	}
}

func (wd *WebDriver) sessionCapabilities() map[string]interface{} {
	return map[string]interface{}{
		"browserName":    wd.BrowserName,
		"browserVersion": wd.BrowserVersion,
		"platformName":   wd.PlatformName,
	}
}

// requestedCapabilities merges the legacy and W3C forms of a new session
// request.
func requestedCapabilities(body map[string]interface{}) map[string]interface{} {
	caps := make(map[string]interface{})
	if desired, ok := body["desiredCapabilities"].(map[string]interface{}); ok {
		for k, v := range desired {
			caps[k] = v
		}
	}
	if w3c, ok := body["capabilities"].(map[string]interface{}); ok {
		if always, ok := w3c["alwaysMatch"].(map[string]interface{}); ok {
			for k, v := range always {
				caps[k] = v
			}
		}
	}
	return caps
}

func (wd *WebDriver) hostAttached() bool {
	return wd.page.HostTag != "" && wd.lookups > wd.page.HostAfter
}

func (wd *WebDriver) find(w http.ResponseWriter, many bool, body map[string]interface{}) {
	using, _ := body["using"].(string)
	value, _ := body["value"].(string)
	wd.lookups++
	matches := (using == "css selector" || using == "tag name") && value == wd.page.HostTag && wd.hostAttached()
	switch {
	case many && matches:
		reply(w, http.StatusOK, []interface{}{elementRef(hostID)})
	case many:
		reply(w, http.StatusOK, []interface{}{})
	case matches:
		reply(w, http.StatusOK, elementRef(hostID))
	default:
		replyError(w, http.StatusNotFound, "no such element", fmt.Sprintf("%s=%q", using, value))
	}
}

func (wd *WebDriver) child(id string) *Element {
	for i := range wd.page.Children {
		if wd.page.Children[i].ID == id {
			return &wd.page.Children[i]
		}
	}
	return nil
}

func childRef(index int) string { return fmt.Sprintf("shadow-%d", index) }

func (wd *WebDriver) displayed(w http.ResponseWriter, elem string) {
	if elem == hostID && wd.hostAttached() {
		reply(w, http.StatusOK, true)
		return
	}
	for i := range wd.page.Children {
		if childRef(i) != elem {
			continue
		}
		c := &wd.page.Children[i]
		if c.HiddenFor > 0 {
			c.HiddenFor--
			reply(w, http.StatusOK, false)
			return
		}
		reply(w, http.StatusOK, c.Displayed)
		return
	}
	replyError(w, http.StatusNotFound, "no such element", elem)
}

func argElement(arg interface{}) string {
	m, _ := arg.(map[string]interface{})
	if id, ok := m[elementKey].(string); ok {
		return id
	}
	id, _ := m["ELEMENT"].(string)
	return id
}

func argString(args []interface{}, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := args[i].(string)
	return s
}

func (wd *WebDriver) execute(w http.ResponseWriter, cmd Command) {
	switch cmd.Detail {
	case "startTest", "endTest":
		reply(w, http.StatusOK, nil)
	case "query", "queryAll":
		if len(cmd.Args) < 2 || argElement(cmd.Args[0]) != hostID || !wd.hostAttached() {
			replyError(w, http.StatusNotFound, "stale element reference", "shadow host is not attached")
			return
		}
		if !wd.page.ShadowRoot {
			reply(w, http.StatusOK, nil)
			return
		}
		id := strings.TrimPrefix(argString(cmd.Args, 1), "#")
		var found []interface{}
		for i, c := range wd.page.Children {
			if c.ID == id {
				found = append(found, elementRef(childRef(i)))
			}
		}
		switch {
		case cmd.Detail == "queryAll":
			if found == nil {
				found = []interface{}{}
			}
			reply(w, http.StatusOK, found)
		case len(found) == 0:
			reply(w, http.StatusOK, nil)
		default:
			reply(w, http.StatusOK, found[0])
		}
	case "setId":
		hostCSS, from, to := argString(cmd.Args, 0), argString(cmd.Args, 1), argString(cmd.Args, 2)
		if hostCSS != wd.page.HostTag || !wd.hostAttached() || !wd.page.ShadowRoot {
			reply(w, http.StatusOK, false)
			return
		}
		c := wd.child(from)
		if c == nil {
			reply(w, http.StatusOK, false)
			return
		}
		c.ID = to
		if wd.page.HideOnRename {
			c.Displayed = false
		}
		reply(w, http.StatusOK, true)
	default:
		replyError(w, http.StatusInternalServerError, "javascript error", "unsupported script")
	}
}
