package build

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os/exec"
)

// Action is the work a task performs.
type Action interface {
	// Run executes the action and returns any captured output.
	Run(ctx context.Context, t *Task) (string, error)
	// Signature identifies the action; a change forces the task to rerun.
	Signature() string
}

// CommandAction runs a shell command in the task's directory.
type CommandAction struct {
	Command string
}

// Run executes the command with sh -c.
func (a *CommandAction) Run(ctx context.Context, t *Task) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Dir = t.Dir
	cmd.Env = t.environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Signature returns a digest of the command text.
func (a *CommandAction) Signature() string {
	sum := sha256.Sum256([]byte(a.Command))
	return "command:" + hex.EncodeToString(sum[:])
}

// InputDiscoverer is implemented by actions that read files beyond their
// task's declared inputs. Discovered files are fingerprinted together with the
// declared inputs, so editing one makes the task stale. They do not create
// graph edges.
type InputDiscoverer interface {
	DiscoverInputs(ctx context.Context, t *Task) ([]string, error)
}

// FuncAction adapts a Go function into an action. Version is folded into the
// signature so a behavior change can force reruns.
type FuncAction struct {
	Name    string
	Version string
	Fn      func(ctx context.Context, t *Task) error
	// Discover, when set, lists the extra files Fn will read.
	Discover func(ctx context.Context, t *Task) ([]string, error)
}

// DiscoverInputs calls Discover.
func (a *FuncAction) DiscoverInputs(ctx context.Context, t *Task) ([]string, error) {
	if a.Discover == nil {
		return nil, nil
	}
	return a.Discover(ctx, t)
}

// Run calls the function.
func (a *FuncAction) Run(ctx context.Context, t *Task) (string, error) {
	return "", a.Fn(ctx, t)
}

// Signature returns the builtin name and version.
func (a *FuncAction) Signature() string {
	return "builtin:" + a.Name + "@" + a.Version
}
