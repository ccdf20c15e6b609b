// Package graphfile loads graph documents exported by the editor.
package graphfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/gragraf/pkg/compiler"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is returned when a document does not match the graph schema.
var ErrInvalidDocument = errors.New("invalid graph document")

const documentSchema = `{
	"type": "object",
	"required": ["nodes", "edges"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"data": {
						"type": "object",
						"properties": {
							"config": {"type": ["object", "null"]}
						}
					}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "source", "target"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1},
					"sourceHandle": {"type": ["string", "null"]}
				}
			}
		},
		"runtime_inputs": {"type": ["object", "null"]}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Document is a graph as saved by the editor, optionally with inputs for the run.
type Document struct {
	Nodes         []models.EditorNode `json:"nodes"`
	Edges         []models.EditorEdge `json:"edges"`
	RuntimeInputs map[string]any      `json:"runtime_inputs,omitempty"`
}

// DSL compiles the document for the engine.
func (d *Document) DSL() models.WorkflowGraphDSL {
	return compiler.Compile(d.Nodes, d.Edges)
}

// Parse validates data against the graph schema and decodes it. Every violation is
// reported in the returned error.
func Parse(data []byte) (*Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(violations, "; "))
	}

	var doc Document

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return &doc, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph document %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}
