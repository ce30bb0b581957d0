// Package render turns a parsed SOP document into its Markdown and PDF
// artifacts. Diagram failures are localized: a bad mermaid block is dropped
// and reported, the surrounding text always survives.
package render

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

const defaultTitle = "Maintenance SOP"

// Renderer holds the per-run context shared by the Markdown and PDF
// outputs.
type Renderer struct {
	// Snapshots maps a step timestamp reference to the extracted frame on
	// disk. Missing entries degrade to text-only steps.
	Snapshots map[time.Duration]string

	// BaseDir is the run directory; Markdown image links are written
	// relative to it.
	BaseDir string

	Logger *slog.Logger
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Markdown renders the document. The returned issues are the localized
// render errors (dropped diagrams); the document itself always renders.
func (r *Renderer) Markdown(doc *sop.Document) (string, []error) {
	var issues []error
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", title(doc))

	if len(doc.Warnings) > 0 {
		sb.WriteString("## Safety Warnings\n\n")
		for _, w := range doc.Warnings {
			fmt.Fprintf(&sb, "- ⚠️ %s\n", w)
		}
		sb.WriteString("\n")
	}

	if len(doc.Tools) > 0 {
		sb.WriteString("## Tools & Materials\n\n")
		for _, t := range doc.Tools {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
		sb.WriteString("\n")
	}

	if len(doc.Steps) > 0 {
		sb.WriteString("## Procedure\n\n")
		for i, step := range doc.Steps {
			fmt.Fprintf(&sb, "### Step %d\n\n%s\n\n", i+1, step.Text)

			for _, ts := range step.Timestamps {
				path, ok := r.Snapshots[ts]
				if !ok {
					continue
				}
				fmt.Fprintf(&sb, "![Snapshot at %s](%s)\n\n", sop.FormatTimecode(ts), r.relPath(path))
			}

			diagram, err := r.stepDiagram(step)
			if err != nil {
				issues = append(issues, err)
			} else if diagram != "" {
				fmt.Fprintf(&sb, "```mermaid\n%s\n```\n\n", diagram)
			}
		}
	}

	writeList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "## %s\n\n", heading)
		for _, item := range items {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
		sb.WriteString("\n")
	}
	writeList("Troubleshooting", doc.Troubleshooting)
	writeList("Tips", doc.Tips)

	if doc.Flowchart != "" {
		if err := ValidateMermaid(doc.Flowchart); err != nil {
			r.logger().Warn("dropping process flow diagram", "error", err)
			issues = append(issues, err)
		} else {
			fmt.Fprintf(&sb, "## Process Flow\n\n```mermaid\n%s\n```\n", doc.Flowchart)
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n", issues
}

// stepDiagram returns the validated mermaid source for a step: the model's
// own block when present, otherwise one synthesized from a directed-flow
// description in the text. ("", nil) means the step simply has no diagram.
func (r *Renderer) stepDiagram(step sop.Step) (string, error) {
	src := step.Diagram
	if src == "" {
		src = FlowFromText(step.Text)
	}
	if src == "" {
		return "", nil
	}
	if err := ValidateMermaid(src); err != nil {
		r.logger().Warn("dropping step diagram", "error", err)
		return "", err
	}
	return src, nil
}

func (r *Renderer) relPath(path string) string {
	if r.BaseDir == "" {
		return path
	}
	rel, err := filepath.Rel(r.BaseDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func title(doc *sop.Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	return defaultTitle
}
