// Command nab-e2e runs the NAB locations page check against a remote browser
// and reports the results of the visual tests.
package main

import (
	"os"

	"github.com/golang/glog"
)

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		glog.Errorf("nab-e2e: %v", err)
	}
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
