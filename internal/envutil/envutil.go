// Package envutil resolves environment variables for stdio upstream
// processes: placeholder substitution, per-host default environment, and
// the "()"-prefix export filter.
package envutil

import (
	"log/slog"
	"os"
	"regexp"
	"runtime"
)

// placeholderPattern matches "${NAME}" placeholders in a configured value.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// posixDefaultVars are copied from the host environment into every POSIX
// stdio child unless the upstream's own configuration overrides them.
var posixDefaultVars = []string{"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER"}

// windowsDefaultVars are copied from the host environment into every
// Windows stdio child unless the upstream's own configuration overrides
// them.
var windowsDefaultVars = []string{
	"APPDATA", "HOMEDRIVE", "HOMEPATH", "LOCALAPPDATA", "PATH",
	"PROCESSOR_ARCHITECTURE", "SYSTEMDRIVE", "SYSTEMROOT", "TEMP",
	"USERNAME", "USERPROFILE",
}

// ResolvePlaceholder substitutes "${NAME}" in value with the host process
// environment variable NAME. A placeholder that doesn't resolve to a set
// variable is passed through verbatim and logged as a warning.
func ResolvePlaceholder(value string) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if resolved, ok := os.LookupEnv(name); ok {
			return resolved
		}
		slog.Warn("unresolved environment placeholder", "placeholder", match)
		return match
	})
}

// defaultVarNames returns the per-host list of environment variable names
// that are copied from the host into every stdio child's environment.
func defaultVarNames() []string {
	if runtime.GOOS == "windows" {
		return windowsDefaultVars
	}
	return posixDefaultVars
}

// BuildChildEnv produces the final "NAME=VALUE" environment slice for a
// stdio child process: a per-host default environment copied from the
// current process, overlaid with the upstream's own configured variables
// (placeholder-resolved), with any value beginning with "()" dropped as a
// function-export security filter.
func BuildChildEnv(configured map[string]string) []string {
	merged := make(map[string]string, len(configured)+len(defaultVarNames()))

	for _, name := range defaultVarNames() {
		if v, ok := os.LookupEnv(name); ok {
			merged[name] = v
		}
	}

	for name, value := range configured {
		resolved := ResolvePlaceholder(value)
		if len(resolved) >= 2 && resolved[0] == '(' && resolved[1] == ')' {
			slog.Debug("dropping function-export environment value", "name", name)
			continue
		}
		merged[name] = resolved
	}

	env := make([]string, 0, len(merged))
	for name, value := range merged {
		env = append(env, name+"="+value)
	}
	return env
}
