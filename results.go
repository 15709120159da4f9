package eyes

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestResultsStatus is the verdict of one test session.
type TestResultsStatus string

// Session verdicts reported by the Eyes server.
const (
	Passed     TestResultsStatus = "Passed"
	Unresolved TestResultsStatus = "Unresolved"
	Failed     TestResultsStatus = "Failed"
)

// TestResults is what the Eyes server reports for a stopped session.
type TestResults struct {
	ID         string            `json:"id" yaml:"id,omitempty"`
	Name       string            `json:"name" yaml:"name"`
	AppName    string            `json:"appName" yaml:"appName"`
	BatchID    string            `json:"batchId" yaml:"batchId,omitempty"`
	BatchName  string            `json:"batchName" yaml:"batchName,omitempty"`
	Status     TestResultsStatus `json:"status" yaml:"status"`
	Steps      int               `json:"steps" yaml:"steps"`
	Matches    int               `json:"matches" yaml:"matches"`
	Mismatches int               `json:"mismatches" yaml:"mismatches"`
	Missing    int               `json:"missing" yaml:"missing"`
	IsNew      bool              `json:"isNew" yaml:"isNew"`
	IsAborted  bool              `json:"isAborted" yaml:"isAborted"`
	HostApp    string            `json:"hostApp" yaml:"hostApp,omitempty"`
	HostOS     string            `json:"hostOS" yaml:"hostOS,omitempty"`
	URL        string            `json:"url" yaml:"url,omitempty"`
}

// IsPassed reports whether the session passed.
func (r *TestResults) IsPassed() bool {
	return r != nil && r.Status == Passed
}

// TestResultContainer pairs the results of one render target with the error
// that prevented getting them, if any.
type TestResultContainer struct {
	TestResults *TestResults `yaml:"testResults,omitempty"`
	Target      RenderTarget `yaml:"target"`
	Exception   error        `yaml:"-"`
}

// MarshalYAML prints the exception as text.
func (c TestResultContainer) MarshalYAML() (interface{}, error) {
	type plain TestResultContainer
	out := struct {
		plain     `yaml:",inline"`
		Exception string `yaml:"exception,omitempty"`
	}{plain: plain(c)}
	if c.Exception != nil {
		out.Exception = c.Exception.Error()
	}
	return out, nil
}

// TestResultsSummary aggregates the results of every test of a runner.
type TestResultsSummary struct {
	Results    []TestResultContainer `yaml:"results"`
	Passed     int                   `yaml:"passed"`
	Unresolved int                   `yaml:"unresolved"`
	Failed     int                   `yaml:"failed"`
	Exceptions int                   `yaml:"exceptions"`
	Mismatches int                   `yaml:"mismatches"`
	Missing    int                   `yaml:"missing"`
	Matches    int                   `yaml:"matches"`
}

func newSummary(containers []TestResultContainer) *TestResultsSummary {
	s := &TestResultsSummary{Results: containers}
	for _, c := range containers {
		if c.Exception != nil {
			s.Exceptions++
		}
		r := c.TestResults
		if r == nil {
			continue
		}
		switch r.Status {
		case Passed:
			s.Passed++
		case Unresolved:
			s.Unresolved++
		case Failed:
			s.Failed++
		}
		s.Mismatches += r.Mismatches
		s.Missing += r.Missing
		s.Matches += r.Matches
	}
	return s
}

func (s *TestResultsSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "result summary {\n")
	for _, c := range s.Results {
		switch {
		case c.Exception != nil:
			fmt.Fprintf(&b, "  %s: exception: %v\n", c.Target, c.Exception)
		case c.TestResults != nil:
			r := c.TestResults
			fmt.Fprintf(&b, "  %s: %q %s (steps %d, matches %d, mismatches %d, missing %d) %s\n",
				c.Target, r.Name, r.Status, r.Steps, r.Matches, r.Mismatches, r.Missing, r.URL)
		}
	}
	fmt.Fprintf(&b, "  passed=%d unresolved=%d failed=%d exceptions=%d mismatches=%d missing=%d matches=%d\n}",
		s.Passed, s.Unresolved, s.Failed, s.Exceptions, s.Mismatches, s.Missing, s.Matches)
	return b.String()
}

// WriteYAML prints the summary as a YAML document.
func (s *TestResultsSummary) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// TestFailedError is returned by GetAllTestResults when asked to raise and a
// test did not pass.
type TestFailedError struct {
	Summary *TestResultsSummary
}

func (e *TestFailedError) Error() string {
	return fmt.Sprintf("eyes: %d of %d tests did not pass", len(e.Summary.Results)-e.Summary.Passed, len(e.Summary.Results))
}
