package fork

import (
	"sync"
	"time"
)

// Settings are process-wide defaults for every forked Plug.
type Settings struct {
	// Timeout is used when a Plug sets none.
	Timeout time.Duration
	// CoverageDir is used when no argument carries CoverageDirArg.
	CoverageDir string
}

var settings struct {
	sync.RWMutex
	current Settings
}

// Configure replaces the process-wide defaults.
func Configure(s Settings) {
	settings.Lock()
	defer settings.Unlock()
	settings.current = s
}

func currentSettings() Settings {
	settings.RLock()
	defer settings.RUnlock()
	return settings.current
}
