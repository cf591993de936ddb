package util

import (
	"fmt"
	"os"
	"time"
)

// IsTraceEnabled gates verbose output. Set once from the root command.
var IsTraceEnabled bool

// All diagnostics go to stderr so that stdout stays clean for the
// credential_process payload.

func Write(format string, msg ...interface{}) {
	fmt.Fprintf(os.Stderr, format, msg...)
}

func Writeln(format string, msg ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, msg...))
}

func Traceln(format string, msg ...interface{}) {
	if IsTraceEnabled {
		Writeln(format, msg...)
	}
}

func Exit(err error) {
	if err != nil {
		Writeln(err.Error())
	}
	os.Exit(1)
}

func CleanExit() {
	os.Exit(0)
}
