package config

import (
	"strings"
	"time"
)

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".fx"}

// ConfigFileNames are the file names FindConfig looks for, in order.
var ConfigFileNames = []string{"fxhost.yaml", "fxhost.yml"}

// ThreadsEnvVar overrides engine.threads from the config file.
const ThreadsEnvVar = "FXHOST_NUM_THREADS"

// Runtime defaults
const (
	DefaultBacklog     = 16
	DefaultWorkers     = 2
	DefaultSlots       = 16
	DefaultArenaSlots  = 4096
	DefaultTick        = time.Millisecond
	DefaultGCThreshold = 1024
	DefaultLogLevel    = "info"
)

// Well-known module names
const (
	MainModuleName = "Main"
	BaseModuleName = "Base"
	CoreModuleName = "Core"

	// HostModuleName must be defined by the bootstrap script.
	HostModuleName = "Host"
)

// IsSourceFile checks if a path has a recognized source extension
func IsSourceFile(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
