// Package debug holds the utilities enabled by the debugging config section.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/frame"
)

// Direction labels for DumpFrame.
const (
	Inbound  = "client->server"
	Outbound = "server->client"
)

var frameDumper = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// StartPprofServer starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// DumpFrame writes the full contents of f to the logger at debug level.
func DumpFrame(logger *logrus.Logger, direction string, fields logrus.Fields, f *frame.Frame) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logger.WithFields(fields).Debugf("%s %s frame\n%s", direction, f.Opcode, frameDumper.Sdump(f))
}
