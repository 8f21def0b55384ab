// Package build runs a pipeline of file-producing tasks incrementally.
//
// Each task declares input and output paths and an action. Dependencies are
// derived from paths (a task reading another task's output runs after it)
// plus explicit "after" edges. A persisted record of input and output
// fingerprints decides which tasks are up to date; a task that reruns
// invalidates everything downstream of it.
package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TaskDef is the configuration form of a task.
type TaskDef struct {
	Name    string            `koanf:"name" json:"name"`
	Command string            `koanf:"command" json:"command,omitempty"`
	Builtin string            `koanf:"builtin" json:"builtin,omitempty"`
	Inputs  []string          `koanf:"inputs" json:"inputs,omitempty"`
	Outputs []string          `koanf:"outputs" json:"outputs,omitempty"`
	After   []string          `koanf:"after" json:"after,omitempty"`
	Dir     string            `koanf:"dir" json:"dir,omitempty"`
	Env     map[string]string `koanf:"env" json:"env,omitempty"`
}

// Task is a resolved pipeline task. Paths are absolute.
type Task struct {
	Name    string
	Inputs  []string
	Outputs []string
	After   []string
	Dir     string
	Env     map[string]string
	Action  Action
}

// Signature digests everything about the task's action that should force a
// rerun when changed.
func (t *Task) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "action=%s\n", t.Action.Signature())
	fmt.Fprintf(h, "dir=%s\n", t.Dir)
	for _, k := range sortedEnvKeys(t.Env) {
		fmt.Fprintf(h, "env:%s=%s\n", k, t.Env[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// environ returns the process environment extended with the task's env.
func (t *Task) environ() []string {
	env := os.Environ()
	for _, k := range sortedEnvKeys(t.Env) {
		env = append(env, k+"="+t.Env[k])
	}
	return env
}

func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builtins maps builtin action names to their implementation.
type Builtins map[string]Action

// FromDefs resolves task definitions against the project root. Relative
// paths are joined to root and ${VAR} references in commands are expanded
// from the task env, then the process environment.
func FromDefs(root string, defs []TaskDef, builtins Builtins) ([]*Task, error) {
	tasks := make([]*Task, 0, len(defs))
	for i, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("task #%d: name is required", i+1)
		}

		var action Action
		switch {
		case def.Command != "" && def.Builtin != "":
			return nil, fmt.Errorf("task %s: command and builtin are mutually exclusive", name)
		case def.Command != "":
			action = &CommandAction{Command: expandEnv(def.Command, def.Env)}
		case def.Builtin != "":
			b, ok := builtins[def.Builtin]
			if !ok {
				return nil, fmt.Errorf("task %s: unknown builtin %q", name, def.Builtin)
			}
			action = b
		default:
			return nil, fmt.Errorf("task %s: either command or builtin is required", name)
		}

		dir := root
		if def.Dir != "" {
			dir = resolvePath(root, def.Dir)
		}

		tasks = append(tasks, &Task{
			Name:    name,
			Inputs:  resolvePaths(root, def.Inputs),
			Outputs: resolvePaths(root, def.Outputs),
			After:   append([]string(nil), def.After...),
			Dir:     dir,
			Env:     def.Env,
			Action:  action,
		})
	}
	return tasks, nil
}

func expandEnv(s string, env map[string]string) string {
	return os.Expand(s, func(key string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func resolvePaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, resolvePath(root, p))
	}
	return out
}
