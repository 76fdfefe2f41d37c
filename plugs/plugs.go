// Package plugs provides the built-in pipeline stages.
//
// Every stage is installed on pipe.Pipe under its name and registered as a
// forkable implementation, so both of these work:
//
//	p.Call("copy", "@dist")
//	p.Call("fork", "copy", "@dist")
package plugs

import (
	"fmt"

	"github.com/justapithecus/plug/fork"
	"github.com/justapithecus/plug/pipe"
)

// Stage names.
const (
	CopyStage   = "copy"
	WriteStage  = "write"
	DebugStage  = "debug"
	ExistsStage = "exists"
)

func init() {
	for name, factory := range map[string]pipe.Factory{
		CopyStage:   newCopy,
		WriteStage:  newWrite,
		DebugStage:  newDebug,
		ExistsStage: newExists,
	} {
		pipe.MustInstall(name, factory)
		fork.MustRegister(name, factory)
	}
}

// stringArg returns args[i] as a string.
func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing %s argument", name)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", name, args[i])
	}
	return s, nil
}

// optionalStringArg is stringArg with a fallback for a missing argument.
func optionalStringArg(args []any, i int, name, fallback string) (string, error) {
	if i >= len(args) {
		return fallback, nil
	}
	return stringArg(args, i, name)
}

func checkArity(args []any, maxArgs int) error {
	if len(args) > maxArgs {
		return fmt.Errorf("expected at most %d arguments, got %d", maxArgs, len(args))
	}
	return nil
}
