package eyes

import (
	"fmt"

	"github.com/golang/glog"
)

var debugFlag = false

// SetDebug turns on logging of every request and reply exchanged with the
// Eyes server. The same output is produced at glog verbosity 2.
func SetDebug(debug bool) {
	debugFlag = debug
}

func debugLog(format string, args ...interface{}) {
	if !debugFlag && !bool(glog.V(2)) {
		return
	}
	glog.InfoDepth(1, fmt.Sprintf(format, args...))
}
