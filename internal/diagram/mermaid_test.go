package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMermaid_Linear(t *testing.T) {
	model, err := Build(linearFlow(), asyncSet{"http": true})
	require.NoError(t, err)

	output := RenderMermaid(model)

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% linear")
	assert.Contains(t, output, `fetch["fetch (http)"]`)
	assert.Contains(t, output, "__start__((")
	assert.Contains(t, output, "__end__((")
	assert.Contains(t, output, "transform -->|pass| store")
	assert.Contains(t, output, "__start__ --> fetch")

	assert.Contains(t, output, "classDef async")
	assert.Contains(t, output, "class fetch async")
}

func TestRenderMermaid_Condition(t *testing.T) {
	model, err := Build(conditionFlow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, `decide{"decide (if input > 10)"}`)
	assert.Contains(t, output, `subgraph decide_steps["decide: steps"]`)
	assert.Contains(t, output, "        high[")
	assert.NotContains(t, output, "class ", "no async nodes")
}

func TestRenderMermaid_NestedShapes(t *testing.T) {
	model, err := Build(nestedFlow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "wrap([")
	assert.Contains(t, output, "loop[[")
	assert.Contains(t, output, "again{{")
	assert.Contains(t, output, `subgraph wrap_before["wrap: before"]`)
	assert.Contains(t, output, `subgraph loop_steps["loop: steps"]`)
	assert.Contains(t, output, "class wrap,loop,call async")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
	assert.Equal(t, "plain", mermaidSafeID("plain"))
}
