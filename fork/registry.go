package fork

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/justapithecus/plug/pipe"
)

// StageName is the pipeline stage that forks: p.Call(StageName, name, args...).
const StageName = "fork"

// ErrNotRegistered is wrapped by a LoadError for an unknown plug name.
var ErrNotRegistered = errors.New("no forkable plug registered under this name")

// RegistrationError reports a duplicate forkable plug name.
type RegistrationError struct {
	Name string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("forkable plug %q is already registered", e.Name)
}

// LoadError reports a worker that could not construct the requested plug.
type LoadError struct {
	Plug string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load forked plug %q: %v", e.Plug, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var implementations = struct {
	sync.RWMutex
	factories map[string]pipe.Factory
}{factories: make(map[string]pipe.Factory)}

// Register makes factory available to workers under name. Parent and worker
// run the same executable, so registering from init covers both sides.
func Register(name string, factory pipe.Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register: name and factory are required")
	}

	implementations.Lock()
	defer implementations.Unlock()
	if _, exists := implementations.factories[name]; exists {
		return &RegistrationError{Name: name}
	}
	implementations.factories[name] = factory
	return nil
}

// MustRegister is Register for init functions. It panics on error.
func MustRegister(name string, factory pipe.Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Registered returns the sorted names of all forkable plugs.
func Registered() []string {
	implementations.RLock()
	defer implementations.RUnlock()
	names := make([]string, 0, len(implementations.factories))
	for name := range implementations.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookup(name string) (pipe.Factory, bool) {
	implementations.RLock()
	defer implementations.RUnlock()
	factory, ok := implementations.factories[name]
	return factory, ok
}

// stage builds a Plug from (name, args...).
func stage(args ...any) (pipe.Plug, error) {
	if len(args) == 0 {
		return nil, errors.New("expected a registered plug name")
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("expected a registered plug name, got %T", args[0])
	}
	return New(name, args[1:]...), nil
}

func init() {
	pipe.MustInstall(StageName, stage)
}
