// Eyes server REST client.

package eyes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// JSONType is JSON content type.
	JSONType = "application/json"
	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects = 10
	// AgentID identifies this client to the Eyes server.
	AgentID = "eyes.go/0.3.0"
)

// Errors returned when the Eyes server cannot be used.
var (
	ErrNoAPIKey = errors.New("eyes: no API key, set " + APIKeyEnv)
)

// ServerError is a non-successful reply from the Eyes server.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("eyes server: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("eyes server: %d %s", e.StatusCode, e.Message)
}

// HTTPClient is used for every Eyes server request.
var HTTPClient = &http.Client{
	Timeout: 2 * time.Minute,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("too many redirects (%d)", len(via))
		}
		req.Header.Set("Accept", JSONType)
		return nil
	},
}

// RunningSession is a test session started on the Eyes server.
type RunningSession struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	BatchID    string `json:"batchId"`
	BaselineID string `json:"baselineId"`
	URL        string `json:"url"`
	IsNew      bool   `json:"isNew"`
}

type environment struct {
	OS          string         `json:"os,omitempty"`
	HostingApp  string         `json:"hostingApp,omitempty"`
	DisplaySize *RectangleSize `json:"displaySize,omitempty"`
	DeviceInfo  string         `json:"deviceInfo,omitempty"`
}

type startInfo struct {
	AgentID          string      `json:"agentId"`
	AppIDOrName      string      `json:"appIdOrName"`
	ScenarioIDOrName string      `json:"scenarioIdOrName"`
	BatchInfo        *BatchInfo  `json:"batchInfo,omitempty"`
	Environment      environment `json:"environment"`
	MatchLevel       string      `json:"matchLevel"`
}

type serverConnector struct {
	url, apiKey string
}

func newServerConnector(serverURL, apiKey string) *serverConnector {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &serverConnector{url: strings.TrimRight(serverURL, "/"), apiKey: apiKey}
}

func (s *serverConnector) requestURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", s.apiKey)
	return s.url + path + "?" + query.Encode()
}

func isMimeType(response *http.Response, mtype string) bool {
	return strings.HasPrefix(response.Header.Get("Content-Type"), mtype)
}

func extractMessage(buf []byte) string {
	reply := struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}{}
	if err := json.Unmarshal(buf, &reply); err != nil {
		return strings.TrimSpace(string(buf))
	}
	if reply.Message != "" {
		return reply.Message
	}
	return reply.Error
}

// execute sends params as JSON and decodes a JSON reply into out. Either may
// be nil.
func (s *serverConnector) execute(ctx context.Context, method, url string, params, out interface{}) error {
	if s.apiKey == "" {
		return ErrNoAPIKey
	}
	var data []byte
	if params != nil {
		var err error
		if data, err = json.Marshal(params); err != nil {
			return err
		}
	}
	debugLog("-> %s %s\n%s", method, redact(url), data)

	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Accept", JSONType)
	if data != nil {
		request.Header.Set("Content-Type", JSONType)
	}

	response, err := HTTPClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	buf, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("reading eyes server reply: %w", err)
	}
	debugLog("<- %s [%s]\n%s", response.Status, response.Header.Get("Content-Type"), buf)

	if response.StatusCode >= 400 {
		return &ServerError{StatusCode: response.StatusCode, Message: extractMessage(buf)}
	}
	if out == nil || len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}
	if !isMimeType(response, JSONType) {
		return fmt.Errorf("eyes server replied with %q, want %s", response.Header.Get("Content-Type"), JSONType)
	}
	return json.Unmarshal(buf, out)
}

func (s *serverConnector) startSession(ctx context.Context, info *startInfo) (*RunningSession, error) {
	session := new(RunningSession)
	params := map[string]interface{}{"startInfo": info}
	if err := s.execute(ctx, http.MethodPost, s.requestURL("/api/sessions/running", nil), params, session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, errors.New("eyes server returned a session without an id")
	}
	return session, nil
}

func (s *serverConnector) stopSession(ctx context.Context, session *RunningSession, aborted bool) (*TestResults, error) {
	query := url.Values{
		"aborted":        {strconv.FormatBool(aborted)},
		"updateBaseline": {"false"},
	}
	results := new(TestResults)
	path := "/api/sessions/running/" + url.PathEscape(session.ID)
	if err := s.execute(ctx, http.MethodDelete, s.requestURL(path, query), nil, results); err != nil {
		return nil, err
	}
	if results.URL == "" {
		results.URL = session.URL
	}
	results.IsNew = results.IsNew || session.IsNew
	results.IsAborted = aborted
	return results, nil
}

// redact hides the API key in logged URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("apiKey") != "" {
		q.Set("apiKey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
