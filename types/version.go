package types

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the canonical project version.
// The CLI and the fork wire protocol share it; a worker rejects messages
// stamped with a different version.
const Version = "0.3.0"

// CheckVersion returns an error unless peer is a valid version equal to
// Version.
func CheckVersion(peer string) error {
	theirs, err := semver.NewVersion(peer)
	if err != nil {
		return fmt.Errorf("invalid peer version %q: %w", peer, err)
	}
	ours := semver.MustParse(Version)
	if !theirs.Equal(ours) {
		return fmt.Errorf("worker version %s does not match parent version %s", ours, theirs)
	}
	return nil
}
