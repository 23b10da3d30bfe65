package sim

import "fmt"

// assertf panics with a formatted message if cond is false. The scheduler,
// dispatcher, and cache layers have no recoverable error paths for
// programmer-error conditions (bad geometry, an event routed to a stalled
// core, an unknown policy name) — those are bugs, not input errors, and
// are reported by panicking rather than threading an error return through
// every call site.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
