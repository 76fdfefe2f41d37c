package pipe

import (
	"fmt"
	"slices"
	"sync"
)

// RegistrationError reports a duplicate stage name.
type RegistrationError struct {
	Name string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("pipeline stage %q is already installed", e.Name)
}

// UnknownStageError reports a call to a stage name that was never installed.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("no pipeline stage named %q", e.Name)
}

var stages = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Install registers a named stage, making p.Call(name, args...) equivalent
// to p.Extend(factory(args...)) on every Pipe. Plug packages call it from
// init. Installing a name twice fails with *RegistrationError.
func Install(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("install: name and factory are required")
	}

	stages.Lock()
	defer stages.Unlock()
	if _, exists := stages.factories[name]; exists {
		return &RegistrationError{Name: name}
	}
	stages.factories[name] = factory
	return nil
}

// MustInstall is Install for init functions. It panics on error.
func MustInstall(name string, factory Factory) {
	if err := Install(name, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory installed under name.
func Lookup(name string) (Factory, bool) {
	stages.RLock()
	defer stages.RUnlock()
	factory, ok := stages.factories[name]
	return factory, ok
}

// Installed returns the sorted names of all installed stages.
func Installed() []string {
	stages.RLock()
	defer stages.RUnlock()
	names := make([]string, 0, len(stages.factories))
	for name := range stages.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call extends the Pipe with the stage installed under name, constructed
// from args. An unknown name or a factory error fails the returned Pipe
// without waiting on this one.
func (p *Pipe) Call(name string, args ...any) *Pipe {
	factory, ok := Lookup(name)
	if !ok {
		return Rejected(p.ctx, p.run, &UnknownStageError{Name: name})
	}
	plug, err := factory(args...)
	if err != nil {
		return Rejected(p.ctx, p.run, fmt.Errorf("stage %q: %w", name, err))
	}
	return p.Extend(plug)
}
