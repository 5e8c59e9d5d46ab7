package coap

import (
	"github.com/astaxie/beego/logs"
)

var debugEnable bool

// GLog is the package-wide logger used by traceTrace. It defaults to a
// console logger; SetLogger overrides it (spec.md section 10 logging).
var GLog *logs.BeeLogger

func init() {
	debugEnable = false
	GLog = logs.NewLogger(10000)
	GLog.SetLogger("console", `{"level":7}`)
	GLog.EnableFuncCallDepth(true)
	GLog.SetLogFuncCallDepth(3)
}

// Debug toggles tick-loop tracing of sends and receives.
func Debug(enable bool) {
	debugEnable = enable
}

// SetLogger replaces the package logger, e.g. to redirect to a file or
// adjust verbosity.
func SetLogger(l *logs.BeeLogger) {
	if l != nil {
		GLog = l
	}
}

func traceTrace(format string, args ...interface{}) {
	GLog.Trace(format, args...)
}
