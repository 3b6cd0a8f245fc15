package coders

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"metacoder/internal/config"
)

// fakeBinary installs an executable shell script named name on PATH so a
// coder's Run path can be exercised without the real assistant installed.
func fakeBinary(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries require a POSIX shell")
	}
	binDir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("create bin dir: %v", err)
	}
	path := filepath.Join(binDir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// unsetEnv removes a variable for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if value, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, value) })
	} else {
		t.Cleanup(func() { os.Unsetenv(key) })
	}
	os.Unsetenv(key)
}

func enabledStdioExtension(name, cmd string, args ...string) config.Extension {
	return config.Extension{
		Name: name,
		Type: config.ExtensionStdio,
		Cmd:  cmd,
		Args: args,
	}
}
