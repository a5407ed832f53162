package sim

import "fmt"

// Debug prints a line per generation turnover.
var Debug = false

// Log prints a trace line when Debug is set.
func Log(format string, args ...any) {
	if Debug {
		fmt.Printf("[sim] "+format+"\n", args...)
	}
}
