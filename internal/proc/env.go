package proc

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ExpandEnv resolves a map of environment overrides against the live process
// environment and returns the concrete environment for a child process.
//
// A literal value overrides the inherited variable outright. A value prefixed
// with "$" is an indirect reference: it resolves to the current value of the
// named variable. When the referenced variable is unset, the override key is
// removed from the result entirely, so "unset" stays distinguishable from
// "explicitly set to empty". The live process environment is never mutated.
func ExpandEnv(overrides map[string]string) map[string]string {
	env := environMap()
	for key, value := range overrides {
		if strings.HasPrefix(value, "$") {
			resolved, ok := os.LookupEnv(value[1:])
			if !ok {
				delete(env, key)
				continue
			}
			env[key] = resolved
			continue
		}
		env[key] = value
	}
	return env
}

func environMap() map[string]string {
	entries := os.Environ()
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			env[entry[:idx]] = entry[idx+1:]
		}
	}
	return env
}

// EnvSlice renders an environment map in the KEY=VALUE form expected by
// os/exec, with keys sorted for deterministic command launches.
func EnvSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, fmt.Sprintf("%s=%s", key, env[key]))
	}
	return entries
}
