package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"

	"github.com/justapithecus/plug/types"
)

// Level is a log verbosity level.
// Values map directly onto zapcore levels and stay below zap's panic levels.
type Level int8

// Levels, from most to least verbose.
const (
	LevelTrace  Level = -3
	LevelDebug  Level = -2
	LevelInfo   Level = -1
	LevelNotice Level = 0
	LevelWarn   Level = 1
	LevelError  Level = 2
)

var levelNames = map[Level]string{
	LevelTrace:  "trace",
	LevelDebug:  "debug",
	LevelInfo:   "info",
	LevelNotice: "notice",
	LevelWarn:   "warn",
	LevelError:  "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	for level, candidate := range levelNames {
		if candidate == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid log level: %q (must be trace, debug, info, notice, warn, or error)", s)
}

// Format selects the output encoding.
type Format string

// Supported formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// ParseFormat parses a format name. The empty string selects console.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "console":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format: %q (must be console or json)", s)
	}
}

// Options configures a Logger.
type Options struct {
	Level  Level
	Color  bool
	Format Format
}

// DefaultOptions returns info-level console logging, colored when stderr
// supports it.
func DefaultOptions() Options {
	return Options{
		Level:  LevelInfo,
		Color:  termenv.NewOutput(os.Stderr).ColorProfile() != termenv.Ascii,
		Format: FormatConsole,
	}
}

func (o Options) normalize() Options {
	if o.Format == "" {
		o.Format = FormatConsole
	}
	if _, ok := levelNames[o.Level]; !ok {
		o.Level = LevelInfo
	}
	return o
}

// Wire converts the options into their fork-message form.
func (o Options) Wire() types.LogOptions {
	return types.LogOptions{
		Level:  int8(o.Level),
		Color:  o.Color,
		Format: string(o.Format),
	}
}

// OptionsFromWire restores options sent by a parent process.
func OptionsFromWire(w types.LogOptions) Options {
	return Options{
		Level:  Level(w.Level),
		Color:  w.Color,
		Format: Format(w.Format),
	}.normalize()
}
