package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// Diagram types we accept from the model. Anything else is treated as
// malformed and dropped rather than shipped to a downstream renderer that
// would choke on it.
var mermaidHeaders = []string{"flowchart", "graph", "sequenceDiagram", "stateDiagram"}

// ValidateMermaid lexically checks a mermaid block: known header, balanced
// bracket nesting, at least one body line. It does not parse the full
// grammar; it catches the truncated and mislabeled blocks models actually
// produce.
func ValidateMermaid(src string) error {
	lines := nonEmptyLines(src)
	if len(lines) == 0 {
		return sop.RenderErrorf("empty mermaid block")
	}

	header := lines[0]
	known := false
	for _, h := range mermaidHeaders {
		if header == h || strings.HasPrefix(header, h+" ") || strings.HasPrefix(header, h+"-") {
			known = true
			break
		}
	}
	if !known {
		return sop.RenderErrorf("unknown mermaid diagram type %q", firstWord(header))
	}
	if len(lines) < 2 {
		return sop.RenderErrorf("mermaid block has no body")
	}

	depth := map[rune]int{}
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range src {
		switch r {
		case '(', '[', '{':
			depth[r]++
		case ')', ']', '}':
			open := pairs[r]
			depth[open]--
			if depth[open] < 0 {
				return sop.RenderErrorf("unbalanced %q in mermaid block", string(r))
			}
		}
	}
	for open, d := range depth {
		if d != 0 {
			return sop.RenderErrorf("unclosed %q in mermaid block", string(open))
		}
	}
	return nil
}

// arrowChain recognizes "A -> B -> C" style directed-flow descriptions in
// plain step text.
var arrowChain = regexp.MustCompile(`\s*(?:->|－>|→|=>)\s*`)

// FlowFromText synthesizes a flowchart from a directed-flow description in a
// step's text. It returns "" when the text holds no recognizable chain.
func FlowFromText(text string) string {
	if !arrowChain.MatchString(text) {
		return ""
	}
	segments := arrowChain.Split(text, -1)

	var nodes []string
	for _, seg := range segments {
		seg = strings.TrimSpace(strings.Trim(strings.TrimSpace(seg), ".,;"))
		if seg == "" || len(seg) > 80 {
			return ""
		}
		nodes = append(nodes, seg)
	}
	if len(nodes) < 2 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	for i := 0; i < len(nodes)-1; i++ {
		fmt.Fprintf(&sb, "    n%d[\"%s\"] --> n%d[\"%s\"]\n", i, sanitizeLabel(nodes[i]), i+1, sanitizeLabel(nodes[i+1]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func nonEmptyLines(src string) []string {
	var out []string
	for _, line := range strings.Split(src, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
