package gpu

import "fmt"

// Debug enables device selection and dispatch tracing on stdout.
var Debug = false

// Log prints a trace line when Debug is set.
func Log(format string, args ...any) {
	if Debug {
		fmt.Printf("[gpu] "+format+"\n", args...)
	}
}
