// Package prompt assembles the instruction payload sent alongside the video.
package prompt

import "strings"

// instructionTemplate is the fixed brief given to the model. The section
// names here line up with the parser's default heading vocabulary; changing
// one side means changing the other.
const instructionTemplate = `You are an expert technical writer and engineer with decades of experience verifying and documenting maintenance procedures.
Analyze the provided video content (visuals and audio) together with the technician's observations and produce a comprehensive Standard Operating Procedure (SOP).
The documentation must be clear, concise, and easy to follow for new technicians. Extract any tribal knowledge demonstrated or spoken in the video.
For every critical step where a specific visual action is performed (removing a part, checking a gauge), include a timestamp tag in the exact format [TIMESTAMP: MM:SS] immediately after the step description.
At the end, include a Mermaid flowchart (inside a ` + "```mermaid" + ` block) of the troubleshooting logic or process flow.
Structure the output in Markdown with these sections:
1. Title & Objective
2. Safety Warnings
3. Tools & Materials
4. Step-by-Step Instructions (remember the [TIMESTAMP: MM:SS] tags)
5. Troubleshooting/Diagnostics
6. Tribal Knowledge/Tips
7. Process Flow`

const contextHeader = "\n\nTechnician's Observations:\n"

const closing = "\n\nGenerate the SOP now."

// Builder caps the assembled prompt at MaxBytes. Truncation only ever drops
// from the tail of the user context, never from the template.
type Builder struct {
	MaxBytes int
}

// Build concatenates the template with the optional technician context. The
// result never exceeds MaxBytes as long as MaxBytes covers the template
// itself; a cap too small for the template returns the bare template.
func (b Builder) Build(userContext string) string {
	userContext = strings.TrimSpace(userContext)

	base := instructionTemplate + closing
	if userContext == "" {
		return base
	}

	fixed := len(instructionTemplate) + len(contextHeader) + len(closing)
	avail := b.MaxBytes - fixed
	if b.MaxBytes > 0 && avail <= 0 {
		return base
	}
	if b.MaxBytes > 0 && len(userContext) > avail {
		userContext = strings.TrimSpace(truncate(userContext, avail))
	}
	if userContext == "" {
		return base
	}

	return instructionTemplate + contextHeader + userContext + closing
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
