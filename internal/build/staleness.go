package build

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// decision is the staleness verdict for one task.
type decision struct {
	stale  bool
	reason string
	// inputs holds the current input fingerprints, keyed like the record.
	inputs core.Fingerprints
	// missing lists declared inputs that match no file.
	missing []string
	// upstream maps each direct upstream task with a record to its run id.
	upstream map[string]string
}

// decide compares a task's current inputs and outputs against its record.
// changedUpstream names a dependency that executes in this run, if any.
func (o *Orchestrator) decide(ctx context.Context, p *Pipeline, t *Task, changedUpstream string, force bool) (decision, error) {
	patterns, err := inputPatterns(ctx, t)
	if err != nil {
		return decision{}, err
	}
	files, missing, err := fingerprint.Expand(patterns)
	if err != nil {
		return decision{}, err
	}
	if len(missing) > 0 {
		return decision{stale: true, missing: missing}, nil
	}

	inputs, err := o.fingerprints(p, files)
	if err != nil {
		return decision{}, err
	}
	d := decision{stale: true, inputs: inputs}

	rec, err := o.store.GetTaskRecord(t.Name)
	if err != nil {
		return decision{}, fmt.Errorf("failed to read record for %s: %w", t.Name, err)
	}
	if d.upstream, err = o.upstreamRuns(p, t); err != nil {
		return decision{}, err
	}
	moved := ""
	if rec != nil {
		moved = movedUpstream(p, t, rec, d.upstream)
	}

	switch {
	case force:
		d.reason = "forced"
	case rec == nil:
		d.reason = "no previous successful run"
	case rec.Signature != t.Signature():
		d.reason = "action changed"
	case changedUpstream != "":
		d.reason = "upstream task " + changedUpstream + " out of date"
	case moved != "":
		d.reason = "upstream task " + moved + " changed since last run"
	default:
		if reason := diffFingerprints("input", rec.Inputs, inputs); reason != "" {
			d.reason = reason
			break
		}
		reason, err := o.checkOutputs(p, t, rec)
		if err != nil {
			return decision{}, err
		}
		if reason != "" {
			d.reason = reason
			break
		}
		d.stale = false
		d.reason = "inputs and outputs unchanged"
	}
	return d, nil
}

// inputPatterns returns the declared inputs plus any the action discovers.
func inputPatterns(ctx context.Context, t *Task) ([]string, error) {
	d, ok := t.Action.(InputDiscoverer)
	if !ok {
		return t.Inputs, nil
	}
	extra, err := d.DiscoverInputs(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to discover inputs: %w", err)
	}
	return append(slices.Clone(t.Inputs), extra...), nil
}

// upstreamRuns returns the current record run id of each direct upstream task
// that has a record.
func (o *Orchestrator) upstreamRuns(p *Pipeline, t *Task) (map[string]string, error) {
	runs := make(map[string]string)
	for _, up := range p.Upstream(t.Name) {
		rec, err := o.store.GetTaskRecord(up)
		if err != nil {
			return nil, fmt.Errorf("failed to read record for %s: %w", up, err)
		}
		if rec != nil {
			runs[up] = rec.RunID
		}
	}
	return runs, nil
}

// movedUpstream returns the first upstream task whose record changed after
// rec was committed, or "". Upstream tasks without a record are left to the
// in-run check, since they execute before this task.
func movedUpstream(p *Pipeline, t *Task, rec *core.TaskRecord, current map[string]string) string {
	for _, up := range p.Upstream(t.Name) {
		if runID, ok := current[up]; ok && rec.Upstream[up] != runID {
			return up
		}
	}
	return ""
}

// checkOutputs reports why the task's outputs no longer match its record,
// or "" if they do.
func (o *Orchestrator) checkOutputs(p *Pipeline, t *Task, rec *core.TaskRecord) (string, error) {
	files, missing, err := fingerprint.Expand(t.Outputs)
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		return "output " + p.Rel(missing[0]) + " missing", nil
	}
	current, err := o.fingerprints(p, files)
	if err != nil {
		return "", err
	}
	return diffFingerprints("output", rec.Outputs, current), nil
}

// fingerprints fingerprints files and keys the result by project-relative path.
func (o *Orchestrator) fingerprints(p *Pipeline, files []string) (core.Fingerprints, error) {
	raw, err := o.fp.Files(files)
	if err != nil {
		return nil, err
	}
	out := make(core.Fingerprints, len(raw))
	for path, sum := range raw {
		out[p.Rel(path)] = sum
	}
	return out, nil
}

// diffFingerprints describes the first difference between recorded and
// current fingerprints in path order, or returns "".
func diffFingerprints(role string, recorded, current core.Fingerprints) string {
	if recorded.Equal(current) {
		return ""
	}

	paths := make([]string, 0, len(recorded)+len(current))
	for p := range recorded {
		paths = append(paths, p)
	}
	for p := range current {
		if _, ok := recorded[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		was, had := recorded[path]
		now, has := current[path]
		switch {
		case had && !has:
			if role == "output" {
				return "output " + path + " missing"
			}
			return "input " + path + " removed"
		case !had && has:
			return role + " " + path + " added"
		case was != now:
			return role + " " + path + " changed"
		}
	}
	return role + "s changed"
}
