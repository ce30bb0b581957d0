package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

func TestValidateMermaidAccepts(t *testing.T) {
	valid := []string{
		"flowchart TD\n    A[Start] --> B[Done]",
		"graph LR\n    a --> b\n    b --> c",
		"sequenceDiagram\n    Tech->>Pump: inspect",
		"stateDiagram-v2\n    [*] --> Running",
	}
	for _, src := range valid {
		assert.NoError(t, ValidateMermaid(src), src)
	}
}

func TestValidateMermaidRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"unknown type":     "pie\n    \"a\": 10",
		"no body":          "flowchart TD",
		"unclosed bracket": "flowchart TD\n    A[Start --> B[Done]",
		"stray close":      "flowchart TD\n    A] --> B",
		"plain prose":      "this is not a diagram\nat all",
	}
	for name, src := range cases {
		err := ValidateMermaid(src)
		require.Error(t, err, name)
		assert.True(t, sop.IsKind(err, sop.KindRender), name)
	}
}

func TestFlowFromText(t *testing.T) {
	src := FlowFromText("Remove cover -> unplug sensor -> test continuity")
	require.NotEmpty(t, src)
	assert.True(t, strings.HasPrefix(src, "flowchart TD"))
	assert.Contains(t, src, `n0["Remove cover"] --> n1["unplug sensor"]`)
	assert.Contains(t, src, `n1["unplug sensor"] --> n2["test continuity"]`)
	assert.NoError(t, ValidateMermaid(src), "synthesized diagrams must pass validation")
}

func TestFlowFromTextUnicodeArrow(t *testing.T) {
	src := FlowFromText("drain → flush → refill")
	require.NotEmpty(t, src)
	assert.Contains(t, src, `n0["drain"]`)
}

func TestFlowFromTextNoChain(t *testing.T) {
	assert.Empty(t, FlowFromText("Tighten the bolts to 40 Nm."))
	assert.Empty(t, FlowFromText(""))
	assert.Empty(t, FlowFromText("-> dangling"))
}

func TestFlowFromTextQuotesSanitized(t *testing.T) {
	src := FlowFromText(`press "start" -> wait`)
	require.NotEmpty(t, src)
	assert.NotContains(t, src, `""start""`)
	assert.Contains(t, src, "'start'")
}
