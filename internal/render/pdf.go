package render

import (
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// PDF writes the document to path. Each numbered step starts on its own
// page; front matter shares the opening page. Diagram validation failures
// degrade exactly as in the Markdown output: the block is skipped, the step
// text is kept, and the failure is returned alongside a successful write.
func (r *Renderer) PDF(doc *sop.Document, path string) ([]error, error) {
	var issues []error

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(title(doc)), false)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, tr(title(doc)), "", "C", false)
	pdf.Ln(6)

	if len(doc.Warnings) > 0 {
		heading(pdf, "Safety Warnings")
		pdf.SetTextColor(160, 30, 30)
		for _, w := range doc.Warnings {
			bullet(pdf, tr(w))
		}
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(4)
	}

	if len(doc.Tools) > 0 {
		heading(pdf, "Tools & Materials")
		for _, t := range doc.Tools {
			bullet(pdf, tr(t))
		}
		pdf.Ln(4)
	}

	for i, step := range doc.Steps {
		pdf.AddPage()
		heading(pdf, fmt.Sprintf("Step %d", i+1))
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(step.Text), "", "L", false)
		pdf.Ln(3)

		for _, ts := range step.Timestamps {
			snapPath, ok := r.Snapshots[ts]
			if !ok {
				continue
			}
			opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: true}
			pdf.ImageOptions(snapPath, -1, -1, 120, 0, true, opts, 0, "")
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 6, tr(fmt.Sprintf("Snapshot at %s", sop.FormatTimecode(ts))), "", 1, "L", false, 0, "")
			pdf.Ln(2)
		}

		diagram, err := r.stepDiagram(step)
		if err != nil {
			issues = append(issues, err)
		} else if diagram != "" {
			codeBlock(pdf, tr, diagram)
		}
	}

	listPage := func(name string, items []string) {
		if len(items) == 0 {
			return
		}
		pdf.AddPage()
		heading(pdf, name)
		for _, item := range items {
			bullet(pdf, tr(item))
		}
	}
	listPage("Troubleshooting", doc.Troubleshooting)
	listPage("Tips", doc.Tips)

	if doc.Flowchart != "" {
		if err := ValidateMermaid(doc.Flowchart); err != nil {
			issues = append(issues, err)
		} else {
			pdf.AddPage()
			heading(pdf, "Process Flow")
			codeBlock(pdf, tr, doc.Flowchart)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return issues, fmt.Errorf("write pdf %q: %w", path, err)
	}
	return issues, nil
}

func heading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, text, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func bullet(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetX(14)
	pdf.MultiCell(0, 6, "- "+text, "", "L", false)
}

// codeBlock prints mermaid source as monospace on a light background; the
// PDF carries the diagram definition rather than a rasterized chart.
func codeBlock(pdf *fpdf.Fpdf, tr func(string) string, src string) {
	pdf.SetFont("Courier", "", 9)
	pdf.SetFillColor(245, 245, 245)
	pdf.MultiCell(0, 5, tr(src), "", "L", true)
	pdf.SetFillColor(255, 255, 255)
	pdf.Ln(3)
}
