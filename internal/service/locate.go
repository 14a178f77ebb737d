package service

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const ScriptName = "folder_uploader.py"

var ErrScriptNotFound = errors.New(ScriptName + " not found")

// ScriptCandidates lists the default locations of the upload script, most
// specific first: next to the executable, the working directory and their
// parents, then the LUNA installation.
func ScriptCandidates() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs, dir, filepath.Join(dir, ".."))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd, filepath.Join(wd, ".."))
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, "/var/lib/luna/current/extras/utils")
	}

	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, filepath.Join(dir, ScriptName))
	}
	return out
}

// FindScript returns the absolute path of the first existing regular file
func FindScript(candidates ...string) (string, error) {
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}
	return "", ErrScriptNotFound
}
