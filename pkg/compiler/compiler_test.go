package compiler

import (
	"encoding/json"
	"testing"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func sampleGraph() ([]models.EditorNode, []models.EditorEdge) {
	width := 180.0
	nodes := []models.EditorNode{
		{ID: "start_1", Type: EditorTypeStart, Position: models.Position{X: 10, Y: 20}},
		{
			ID:       "http_1",
			Type:     EditorTypeHTTPRequest,
			Selected: true,
			Width:    &width,
			Data: models.EditorNodeData{
				Label:  "Fetch",
				Config: map[string]any{"url": "https://example.com", "method": "GET"},
			},
		},
		{ID: "review", Type: EditorTypeHumanInLoop, Data: models.EditorNodeData{Config: map[string]any{"require_comment": true}}},
		{ID: "end_1", Type: EditorTypeEnd},
	}
	edges := []models.EditorEdge{
		{ID: "e1", Source: "start_1", Target: "http_1", Animated: true},
		{ID: "e2", Source: "http_1", Target: "review", TargetHandle: ptr("in")},
		{ID: "e3", Source: "review", Target: "end_1", SourceHandle: ptr("approval")},
	}

	return nodes, edges
}

func TestCompile_MapsTypesAndStripsEditorFields(t *testing.T) {
	nodes, edges := sampleGraph()

	dsl := Compile(nodes, edges)

	require.Len(t, dsl.Nodes, 4)
	require.Len(t, dsl.Edges, 3)

	assert.Equal(t, "start", dsl.Nodes[0].Type)
	assert.Equal(t, "http_request", dsl.Nodes[1].Type)
	assert.Equal(t, "human_in_loop", dsl.Nodes[2].Type)
	assert.Equal(t, map[string]any{"url": "https://example.com", "method": "GET"}, dsl.Nodes[1].Config)
	assert.NotNil(t, dsl.Nodes[0].Config, "missing config compiles to an empty object")

	assert.Nil(t, dsl.Edges[0].SourceHandle)
	require.NotNil(t, dsl.Edges[2].SourceHandle)
	assert.Equal(t, "approval", *dsl.Edges[2].SourceHandle)

	raw, err := json.Marshal(dsl)
	require.NoError(t, err)

	for _, field := range []string{"position", "selected", "width", "label", "animated", "targetHandle", "data"} {
		assert.NotContains(t, string(raw), `"`+field+`"`)
	}
}

func TestCompile_UnknownTypePassesThrough(t *testing.T) {
	dsl := Compile([]models.EditorNode{{ID: "x", Type: "customThing"}}, nil)

	require.Len(t, dsl.Nodes, 1)
	assert.Equal(t, "customThing", dsl.Nodes[0].Type)
	assert.NotNil(t, dsl.Edges)
}

func TestCompile_StableUnderReserialization(t *testing.T) {
	nodes, edges := sampleGraph()

	first, err := json.Marshal(Compile(nodes, edges))
	require.NoError(t, err)

	second, err := json.Marshal(Compile(nodes, edges))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestCompile_DoesNotAliasConfig(t *testing.T) {
	nodes, edges := sampleGraph()

	dsl := Compile(nodes, edges)
	dsl.Nodes[1].Config["url"] = "changed"

	assert.Equal(t, "https://example.com", nodes[1].Data.Config["url"])
}

func TestEditorType_InvertsEveryMappedType(t *testing.T) {
	for editorType := range editorToEngine {
		t.Run(editorType, func(t *testing.T) {
			dsl := Compile([]models.EditorNode{{ID: "n", Type: editorType}}, nil)
			assert.Equal(t, editorType, EditorType(dsl.Nodes[0].Type))
		})
	}
}
