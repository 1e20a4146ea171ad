package pipeline

import (
	"path/filepath"
	"sort"
	"sync"
)

// locks serializes stages touching the same artifacts. Inputs are locked
// shared, outputs exclusively.
type locks struct {
	mu    sync.Mutex
	paths map[string]*sync.RWMutex
}

func newLocks() *locks {
	return &locks{paths: make(map[string]*sync.RWMutex)}
}

func (l *locks) get(path string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.paths[path]
	if !ok {
		m = new(sync.RWMutex)
		l.paths[path] = m
	}
	return m
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// acquire locks reads and writes in a global order and returns the release
// function. A path in both sets is locked exclusively.
func (l *locks) acquire(reads, writes []string) func() {
	mode := make(map[string]bool)
	for _, p := range reads {
		if p == "" {
			continue
		}
		if _, ok := mode[canonical(p)]; !ok {
			mode[canonical(p)] = false
		}
	}
	for _, p := range writes {
		if p != "" {
			mode[canonical(p)] = true
		}
	}
	ordered := make([]string, 0, len(mode))
	for p := range mode {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var release []func()
	for _, p := range ordered {
		m := l.get(p)
		if mode[p] {
			m.Lock()
			release = append(release, m.Unlock)
		} else {
			m.RLock()
			release = append(release, m.RUnlock)
		}
	}
	return func() {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
	}
}
