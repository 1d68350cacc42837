package main

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// verbosityLevel maps the number of -v flags to a log level:
// none warn, -v info, -vv debug, -vvv and up trace.
func verbosityLevel(count int) log.Level {
	switch {
	case count <= 0:
		return log.WarnLevel
	case count == 1:
		return log.InfoLevel
	case count == 2:
		return log.DebugLevel
	default:
		return log.TraceLevel
	}
}

func setupLogging(out io.Writer, verbosity int) {
	log.SetOutput(out)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(verbosityLevel(verbosity))
}
