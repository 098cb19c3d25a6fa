// Package monitoring holds the diagnostic logger shared by the estimator and
// its ingestion and storage layers.
package monitoring

import "log"

// Logf receives filter warnings, run summaries and migration messages.
// Defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps Logf. nil mutes diagnostics, which the CLI's -quiet flag
// and the tests rely on.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable condition, such as a non-positive time step,
// with a "warning:" prefix.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
