// Package compiler converts the editor graph model into the DSL understood by the execution engine.
package compiler

import (
	"maps"

	"github.com/dukex/gragraf/pkg/models"
)

// Editor node types.
const (
	EditorTypeStart         = "start"
	EditorTypeEnd           = "end"
	EditorTypeAgent         = "agent"
	EditorTypeHTTPRequest   = "httpRequest"
	EditorTypeBranch        = "branch"
	EditorTypeKnowledgeBase = "knowledgeBase"
	EditorTypeHumanInLoop   = "humanInLoop"
)

// Engine node types.
const (
	EngineTypeStart         = "start"
	EngineTypeEnd           = "end"
	EngineTypeAgent         = "agent"
	EngineTypeHTTPRequest   = "http_request"
	EngineTypeBranch        = "branch"
	EngineTypeKnowledgeBase = "knowledge_base"
	EngineTypeHumanInLoop   = "human_in_loop"
)

var editorToEngine = map[string]string{
	EditorTypeStart:         EngineTypeStart,
	EditorTypeEnd:           EngineTypeEnd,
	EditorTypeAgent:         EngineTypeAgent,
	EditorTypeHTTPRequest:   EngineTypeHTTPRequest,
	EditorTypeBranch:        EngineTypeBranch,
	EditorTypeKnowledgeBase: EngineTypeKnowledgeBase,
	EditorTypeHumanInLoop:   EngineTypeHumanInLoop,
}

var engineToEditor = invert(editorToEngine)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}

	return out
}

// EngineType maps an editor node type to the engine's type. Unknown types pass through.
func EngineType(editorType string) string {
	if t, ok := editorToEngine[editorType]; ok {
		return t
	}

	return editorType
}

// EditorType maps an engine node type back to the editor's type. Unknown types pass through.
func EditorType(engineType string) string {
	if t, ok := engineToEditor[engineType]; ok {
		return t
	}

	return engineType
}

// Compile builds the wire DSL from the live editor graph. It never fails and does not
// retain or modify its inputs.
func Compile(nodes []models.EditorNode, edges []models.EditorEdge) models.WorkflowGraphDSL {
	dsl := models.WorkflowGraphDSL{
		Nodes: make([]models.DSLNode, 0, len(nodes)),
		Edges: make([]models.DSLEdge, 0, len(edges)),
	}

	for _, node := range nodes {
		config := maps.Clone(node.Data.Config)
		if config == nil {
			config = map[string]any{}
		}

		dsl.Nodes = append(dsl.Nodes, models.DSLNode{
			ID:     node.ID,
			Type:   EngineType(node.Type),
			Config: config,
		})
	}

	for _, edge := range edges {
		var handle *string

		if edge.SourceHandle != nil && *edge.SourceHandle != "" {
			h := *edge.SourceHandle
			handle = &h
		}

		dsl.Edges = append(dsl.Edges, models.DSLEdge{
			ID:           edge.ID,
			Source:       edge.Source,
			Target:       edge.Target,
			SourceHandle: handle,
		})
	}

	return dsl
}
