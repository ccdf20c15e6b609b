// Package models defines the graph, DSL and run session models shared by the run controller.
package models

// Position is the canvas position of an editor node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EditorNodeData carries the editor-facing payload of a node.
type EditorNodeData struct {
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// EditorNode is a node as exported by the graph editor.
type EditorNode struct {
	ID       string         `json:"id"                 validate:"required"`
	Type     string         `json:"type"               validate:"required"`
	Position Position       `json:"position"`
	Data     EditorNodeData `json:"data"`
	Selected bool           `json:"selected,omitempty"`
	Dragging bool           `json:"dragging,omitempty"`
	Width    *float64       `json:"width,omitempty"`
	Height   *float64       `json:"height,omitempty"`
}

// EditorEdge is an edge as exported by the graph editor.
type EditorEdge struct {
	ID           string  `json:"id"                     validate:"required"`
	Source       string  `json:"source"                 validate:"required"`
	Target       string  `json:"target"                 validate:"required"`
	SourceHandle *string `json:"sourceHandle,omitempty"`
	TargetHandle *string `json:"targetHandle,omitempty"`
	Animated     bool    `json:"animated,omitempty"`
	Label        string  `json:"label,omitempty"`
}

// DSLNode is a node in the wire-level graph definition.
type DSLNode struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// DSLEdge is an edge in the wire-level graph definition.
type DSLEdge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"source_handle,omitempty"`
}

// WorkflowGraphDSL is the compiled graph sent to the execution engine.
// It is never mutated after it has been sent.
type WorkflowGraphDSL struct {
	Nodes []DSLNode `json:"nodes"`
	Edges []DSLEdge `json:"edges"`
}
