package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/build"
	"github.com/leapstack-labs/vedaprep/internal/cli/output"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the task dependency graph",
		Long: `Display the dependency graph of all pipeline tasks.

Tasks are grouped by execution level, showing which tasks can run
in parallel and their dependency relationships.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  vedaprep dag

  # Output as JSON
  vedaprep dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	p, err := cmdCtx.Pipeline()
	if err != nil {
		return err
	}
	levels, err := p.Levels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return dagJSON(r, p, levels)
	case output.ModeMarkdown:
		dagMarkdown(r, p, levels)
	default:
		dagText(r, p, levels)
	}
	return nil
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, p *build.Pipeline, levels [][]string) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			r.Printf("  %s\n", styles.TaskName.Render(name))
			if deps := p.Upstream(name); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if children := p.Downstream(name); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d tasks, %d dependencies", len(p.Names()), p.EdgeCount())))
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, p *build.Pipeline, levels [][]string) {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, name := range level {
			r.Printf("- %s\n", name)
			if deps := p.Upstream(name); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := p.Downstream(name); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Tasks", fmt.Sprint(len(p.Names()))))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprint(p.EdgeCount())))
}

// dagJSON outputs DAG in JSON format.
func dagJSON(r *output.Renderer, p *build.Pipeline, levels [][]string) error {
	out := output.DAGOutput{
		Levels:     make([]output.DAGLevel, 0, len(levels)),
		TotalTasks: len(p.Names()),
		TotalEdges: p.EdgeCount(),
	}
	for i, level := range levels {
		dl := output.DAGLevel{Level: i, Tasks: make([]output.DAGNode, 0, len(level))}
		for _, name := range level {
			dl.Tasks = append(dl.Tasks, output.DAGNode{
				Name:      name,
				DependsOn: nonNil(p.Upstream(name)),
				UsedBy:    nonNil(p.Downstream(name)),
			})
		}
		out.Levels = append(out.Levels, dl)
	}
	return r.JSON(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
