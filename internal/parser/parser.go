// Package parser turns the model's free text into a structured SOP
// document. The text is untrusted: sections are found by heuristic heading
// match, and when nothing matches at all the whole input degrades into a
// single steps section instead of failing.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/kothari1/NuFleet-AI-SOP/internal/config"
	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// timestampTag matches the [TIMESTAMP: MM:SS] tags the prompt asks for,
// with an optional hour field.
var timestampTag = regexp.MustCompile(`\[TIMESTAMP:\s*(\d{1,2}:\d{2}(?::\d{2})?)\]`)

// listMarker strips leading bullet or numbering from an item line.
var listMarker = regexp.MustCompile(`^(\d+[.)]|[-*•])\s+`)

const mermaidFence = "```mermaid"

// Parser splits raw model output on a configured heading vocabulary.
type Parser struct {
	// aliases maps a normalized heading to its canonical section.
	aliases map[string]string
}

// New builds a parser from a vocabulary of canonical section → accepted
// headings. Matching is case-insensitive.
func New(headings map[string][]string) *Parser {
	p := &Parser{aliases: make(map[string]string)}
	for canonical, names := range headings {
		for _, name := range names {
			p.aliases[strings.ToLower(strings.TrimSpace(name))] = canonical
		}
	}
	return p
}

// Parse never fails. If at least one recognized heading appears, lines
// accumulate into the most recently opened section and leading unmatched
// text is discarded; with no recognized heading at all, the entire input
// becomes one unstructured steps section.
func (p *Parser) Parse(raw string) *sop.Document {
	doc := &sop.Document{}
	lines := strings.Split(raw, "\n")

	section := ""
	matchedAny := false
	inFence := false
	var fence strings.Builder

	for _, line := range lines {
		if inFence {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inFence = false
				p.attachDiagram(doc, section, fence.String())
				fence.Reset()
			} else {
				fence.WriteString(line)
				fence.WriteString("\n")
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, mermaidFence) {
			inFence = true
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			// Non-mermaid fence: keep the content as plain lines.
			continue
		}

		if canonical, ok := p.matchHeading(trimmed); ok {
			section = canonical
			matchedAny = true
			continue
		}

		if trimmed == "" || section == "" {
			continue
		}
		p.appendLine(doc, section, line)
	}

	// Unterminated fence: treat what we have as the diagram.
	if inFence {
		p.attachDiagram(doc, section, fence.String())
	}

	if !matchedAny {
		degraded := &sop.Document{}
		if text := strings.TrimSpace(raw); text != "" {
			degraded.Steps = []sop.Step{{Text: text}}
		}
		return degraded
	}
	return doc
}

// matchHeading normalizes a line (markdown hashes, bold markers, list
// numbering, trailing colon) and looks it up in the vocabulary.
func (p *Parser) matchHeading(line string) (string, bool) {
	if line == "" || len(line) > 80 {
		return "", false
	}
	h := strings.TrimLeft(line, "#")
	h = strings.TrimSpace(h)
	h = strings.Trim(h, "*_")
	h = listMarker.ReplaceAllString(h, "")
	h = strings.TrimSuffix(strings.TrimSpace(h), ":")
	h = strings.ToLower(strings.TrimSpace(h))

	canonical, ok := p.aliases[h]
	return canonical, ok
}

func (p *Parser) appendLine(doc *sop.Document, section, line string) {
	switch section {
	case config.SectionTitle:
		if doc.Title == "" {
			doc.Title = cleanItem(line)
		}
	case config.SectionWarnings:
		doc.Warnings = append(doc.Warnings, cleanItem(line))
	case config.SectionTools:
		doc.Tools = append(doc.Tools, cleanItem(line))
	case config.SectionTroubleshooting:
		doc.Troubleshooting = append(doc.Troubleshooting, cleanItem(line))
	case config.SectionTips:
		doc.Tips = append(doc.Tips, cleanItem(line))
	case config.SectionSteps:
		p.appendStepLine(doc, line)
	case config.SectionFlow:
		// Prose around the flowchart block carries no structure; only the
		// fenced diagram is kept.
	}
}

// appendStepLine starts a new step per line; an indented line continues the
// previous step.
func (p *Parser) appendStepLine(doc *sop.Document, line string) {
	continuation := len(doc.Steps) > 0 &&
		(strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) &&
		!listMarker.MatchString(strings.TrimSpace(line))

	text, timestamps := extractTimestamps(cleanItem(line))
	if continuation {
		last := &doc.Steps[len(doc.Steps)-1]
		last.Text = strings.TrimSpace(last.Text + " " + text)
		last.Timestamps = append(last.Timestamps, timestamps...)
		return
	}
	doc.Steps = append(doc.Steps, sop.Step{Text: text, Timestamps: timestamps})
}

func (p *Parser) attachDiagram(doc *sop.Document, section, src string) {
	src = strings.TrimRight(src, "\n")
	if strings.TrimSpace(src) == "" {
		return
	}
	if section == config.SectionSteps && len(doc.Steps) > 0 {
		doc.Steps[len(doc.Steps)-1].Diagram = src
		return
	}
	doc.Flowchart = src
}

// extractTimestamps pulls [TIMESTAMP: …] tags out of a step, returning the
// cleaned display text and the referenced moments.
func extractTimestamps(text string) (string, []time.Duration) {
	var refs []time.Duration
	for _, m := range timestampTag.FindAllStringSubmatch(text, -1) {
		if d, err := sop.ParseTimecode(m[1]); err == nil {
			refs = append(refs, d)
		}
	}
	cleaned := timestampTag.ReplaceAllString(text, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return cleaned, refs
}

// cleanItem strips list markers and surrounding markdown emphasis from a
// content line.
func cleanItem(line string) string {
	s := strings.TrimSpace(line)
	s = listMarker.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") && len(s) > 4 {
		s = s[2 : len(s)-2]
	}
	return strings.TrimSpace(s)
}
