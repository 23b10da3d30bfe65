// Package stat provides the process-wide counter registry: a flat list of
// named (core-id, name, value) triples that every other package in this
// module reports into. It has no dependencies on the rest of the
// simulator so that both sim and sim/cache can import it without a cycle.
package stat

import (
	"fmt"
	"io"
	"sync"
)

// Counter is a named, per-core statistic. All counters ever constructed
// self-register into the process-wide registry in construction order, so
// a final Dump reproduces declaration order regardless of which counters
// ended up nonzero.
type Counter struct {
	core  int
	name  string
	value int64
}

var (
	registryMu sync.Mutex
	registry   []*Counter
)

// NewCounter constructs a Counter for the given core and name and appends
// it to the process-wide registry. core is -1 for global (non-per-core)
// counters.
func NewCounter(core int, name string) *Counter {
	c := &Counter{core: core, name: name}
	registryMu.Lock()
	registry = append(registry, c)
	registryMu.Unlock()
	return c
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	registryMu.Lock()
	c.value += delta
	registryMu.Unlock()
}

// Set assigns the counter's value directly.
func (c *Counter) Set(v int64) {
	registryMu.Lock()
	c.value = v
	registryMu.Unlock()
}

// Value reads the counter's current value.
func (c *Counter) Value() int64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	return c.value
}

// DumpCounters writes every registered counter to w, one line each, as a
// Python dict literal: {PREFIX, 'cpuid': C, 'NAME': V, SUFFIX}. Global
// counters (core < 0) are written with cpuid 0, matching the
// original tool's global counters, which are likewise always cpuid 0 —
// prefix and suffix are plain key-value fragments supplied by the
// caller; this function supplies the surrounding braces, in declaration
// order.
func DumpCounters(w io.Writer, prefix, suffix string) error {
	registryMu.Lock()
	snapshot := make([]Counter, len(registry))
	for i, c := range registry {
		snapshot[i] = *c
	}
	registryMu.Unlock()

	for _, c := range snapshot {
		cpuid := c.core
		if cpuid < 0 {
			cpuid = 0
		}
		entry := fmt.Sprintf("'cpuid': %d, '%s': %d", cpuid, c.name, c.value)
		if _, err := fmt.Fprintf(w, "{%s%s%s}\n", prefix, entry, suffix); err != nil {
			return err
		}
	}
	return nil
}

// ResetCounters clears the process-wide registry. Intended for tests that
// construct more than one simulation in the same process.
func ResetCounters() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}
