package run

import (
	"slices"
	"sync"
)

// registry counts running invocations per task name. The same task may run
// more than once concurrently.
type registry struct {
	mu     sync.Mutex
	counts map[string]int
}

var running = &registry{counts: make(map[string]int)}

func (reg *registry) add(name string) (release func()) {
	reg.mu.Lock()
	reg.counts[name]++
	reg.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			reg.mu.Lock()
			defer reg.mu.Unlock()
			if reg.counts[name]--; reg.counts[name] <= 0 {
				delete(reg.counts, name)
			}
		})
	}
}

func (reg *registry) names() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	names := make([]string, 0, len(reg.counts))
	for name := range reg.counts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunningTaskNames returns a sorted snapshot of the tasks currently inside
// Exec. Intended for status output only.
func RunningTaskNames() []string {
	return running.names()
}
