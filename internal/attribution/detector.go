// Package attribution works out who is recording a field report when the
// caller does not say.
package attribution

import (
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	cachedName string
	once       sync.Once
)

// DetectEngineer returns the best available engineer name.
// Checks in order: FIELDMEMO_ENGINEER env, git config user.name, USER env.
// Returns "" when none is set. The result is cached after first call.
func DetectEngineer() string {
	once.Do(func() {
		cachedName = detectEngineerUncached()
	})
	return cachedName
}

// detectEngineerUncached performs detection without caching. Used for testing.
func detectEngineerUncached() string {
	if name := strings.TrimSpace(os.Getenv("FIELDMEMO_ENGINEER")); name != "" {
		return name
	}
	if name := gitUserName(); name != "" {
		return name
	}
	return strings.TrimSpace(os.Getenv("USER"))
}

// gitUserName runs `git config --get user.name` and returns the trimmed result.
// Returns empty string on any error.
func gitUserName() string {
	out, err := exec.Command("git", "config", "--get", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
