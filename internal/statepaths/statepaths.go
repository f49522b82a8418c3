// Package statepaths resolves the on-disk layout of the state directory
// from viper configuration.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const defaultStateDirName = ".outreach"

// FileStateDir returns the root state directory, honoring the
// file_state_dir key and expanding a leading ~.
func FileStateDir() string {
	dir := strings.TrimSpace(viper.GetString("file_state_dir"))
	if dir == "" {
		return filepath.Join(homeDir(), defaultStateDirName)
	}
	return ExpandHomePath(dir)
}

// ContactsDir holds the progress file.
func ContactsDir() string {
	return filepath.Join(FileStateDir(), "contacts")
}

// CadenceDir holds the throughput counters.
func CadenceDir() string {
	return filepath.Join(FileStateDir(), "cadence")
}

// AuditDir holds the dispatch audit log.
func AuditDir() string {
	return filepath.Join(FileStateDir(), "audit")
}

// PolicyPath returns the configured cadence policy file, empty when
// unset.
func PolicyPath() string {
	return ExpandHomePath(strings.TrimSpace(viper.GetString("cadence.policy_file")))
}

// ExpandHomePath rewrites a leading ~ or ~/ to the user's home
// directory. Other paths pass through unchanged.
func ExpandHomePath(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "."
}
