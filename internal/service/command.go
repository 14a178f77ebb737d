package service

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gelecek/folder-uploader/internal/model"
)

// Command is the upload executable. Interpreter is optional, when empty
// the Script is executed directly.
type Command struct {
	Interpreter string
	Script      string
	Env         []string
}

// CommandFromConfig resolves the upload executable. An empty script is
// searched for in the default locations. A relative script is resolved
// against the working directory, jobs run inside their folders.
func CommandFromConfig(cfg model.Uploader) (Command, error) {
	script := cfg.Script
	var err error
	if script == "" {
		script, err = FindScript(ScriptCandidates()...)
	} else {
		script, err = filepath.Abs(script)
	}
	if err != nil {
		return Command{}, err
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+os.ExpandEnv(cfg.Env[k]))
	}

	return Command{
		Interpreter: cfg.Interpreter,
		Script:      script,
		Env:         env,
	}, nil
}

// Argv returns the path to execute and its arguments
func (c Command) Argv(args []string) (string, []string) {
	switch {
	case c.Interpreter == "":
		return c.Script, args
	case c.Script == "":
		return c.Interpreter, args
	default:
		return c.Interpreter, append([]string{c.Script}, args...)
	}
}

// String returns the redacted command line
func (c Command) String(args []string) string {
	path, argv := c.Argv(RedactArgs(args))
	return strings.Join(append([]string{path}, argv...), " ")
}

// BuildArgs converts cfg into the upload executable arguments. The order of
// flags is stable.
func BuildArgs(cfg model.JobConfig) ([]string, error) {
	if strings.TrimSpace(cfg.Folder) == "" {
		return nil, fmt.Errorf("%w: folder is empty", model.ErrInvalidConfig)
	}
	return []string{
		"--login", cfg.Username,
		"--password", cfg.Password,
		"--source", cfg.Folder,
		"--warped", flag(cfg.Warped),
		"--name_as_userdata", flag(cfg.NameAsUserData),
		"--descriptor", cfg.Descriptor,
		"--origin", cfg.Origin,
		"--avatar", cfg.Avatar,
		"--list_id", cfg.ListID,
		"--multi_face_policy", strconv.Itoa(cfg.MultiFacePolicy),
		"--basic_attr", "1",
		"--score_threshold", "0.0",
		"--list_linked", "1",
	}, nil
}

// RedactArgs returns a copy of args with the password value masked
func RedactArgs(args []string) []string {
	out := slices.Clone(args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--password" {
			out[i+1] = "***"
			i++
		}
	}
	return out
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
