package dialect

import (
	"fmt"
	"sync"
)

// The registry is a process-global, immutable-after-init map of dialect
// name to Transformer; each dialect package registers itself from an
// init() function.
var (
	mu           sync.RWMutex
	transformers = map[Name]Transformer{}
)

// Register adds a Transformer to the registry. Called from each dialect
// package's init().
func Register(t Transformer) {
	mu.Lock()
	defer mu.Unlock()
	transformers[t.Name()] = t
}

// Get looks up a registered Transformer by name.
func Get(name Name) (Transformer, error) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := transformers[name]
	if !ok {
		return nil, fmt.Errorf("dialect: no transformer registered for %q", name)
	}
	return t, nil
}

// All returns every registered Transformer, in no particular order.
func All() []Transformer {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Transformer, 0, len(transformers))
	for _, t := range transformers {
		out = append(out, t)
	}
	return out
}

// Names returns every registered dialect name.
func Names() []Name {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Name, 0, len(transformers))
	for n := range transformers {
		out = append(out, n)
	}
	return out
}
