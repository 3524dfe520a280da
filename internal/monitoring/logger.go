// Package monitoring holds the diagnostic logger shared by the rig packages.
package monitoring

import (
	"encoding/hex"
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Dump logs label followed by a hex dump of buf, one Logf call per line.
func Dump(label string, buf []byte) {
	Logf("%s (%d bytes)", label, len(buf))
	for _, line := range strings.Split(strings.TrimRight(hex.Dump(buf), "\n"), "\n") {
		if line != "" {
			Logf("  %s", line)
		}
	}
}
