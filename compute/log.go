package compute

import "fmt"

// Debug enables dispatch tracing on stdout.
var Debug = false

// Log prints a trace line when Debug is set.
func Log(format string, args ...any) {
	if Debug {
		fmt.Printf("[compute] "+format+"\n", args...)
	}
}
