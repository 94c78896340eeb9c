package jobhandler

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// recognizedInputLoaders is the input-loading node-class set of spec §4.8
// step 3: LoadImage, LoadImageMask, and a video-loading variant.
var recognizedInputLoaders = map[string]string{
	"LoadImage":     "image",
	"LoadImageMask": "image",
	"LoadVideo":     "video",
}

// RewriteGraph traverses graphJSON — which may be either the server-API
// shape (a map of node_id -> {class_type, inputs}) or the editor shape (an
// object with a top-level "nodes" array) — and replaces the image/video
// input of every recognized loader node whose current value matches a key
// in staged with its materialized filename. Unrecognized node classes are
// left untouched. Returns the rewritten JSON.
func RewriteGraph(graphJSON []byte, staged map[string]string) ([]byte, error) {
	if len(staged) == 0 {
		return graphJSON, nil
	}
	if isEditorShape(graphJSON) {
		return rewriteEditorGraph(graphJSON, staged)
	}
	return rewriteServerGraph(graphJSON, staged)
}

// isEditorShape uses gjson for a cheap read-only shape probe: the editor
// graph format is an object carrying a top-level "nodes" array, where the
// server-API format's top-level keys are node ids (never literally "nodes"
// in that shape, since ComfyUI node ids are numeric strings).
func isEditorShape(graphJSON []byte) bool {
	return gjson.GetBytes(graphJSON, "nodes").IsArray()
}

// rewriteServerGraph mutates the server-API shape:
// {"<node_id>": {"class_type": "...", "inputs": {"image": "<name>", ...}}}
func rewriteServerGraph(graphJSON []byte, staged map[string]string) ([]byte, error) {
	var graph map[string]json.RawMessage
	if err := json.Unmarshal(graphJSON, &graph); err != nil {
		return nil, fmt.Errorf("parsing server-api graph: %w", err)
	}

	for id, raw := range graph {
		var node struct {
			ClassType string                 `json:"class_type"`
			Inputs    map[string]interface{} `json:"inputs"`
		}
		if err := json.Unmarshal(raw, &node); err != nil {
			continue // not a node object; leave untouched
		}
		field, ok := recognizedInputLoaders[node.ClassType]
		if !ok {
			continue
		}
		current, ok := node.Inputs[field].(string)
		if !ok {
			continue
		}
		materialized, found := staged[current]
		if !found {
			continue
		}
		node.Inputs[field] = materialized

		rewritten, err := json.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("re-encoding node %s: %w", id, err)
		}
		graph[id] = rewritten
	}

	return json.Marshal(graph)
}

// editorNode mirrors the subset of the editor (nodes-array) node shape
// this rewriter needs: the node's class under "type", and its stored
// widget value for the image/video filename under "widgets_values[0]".
type editorNode struct {
	ID            json.Number     `json:"id"`
	Type          string          `json:"type"`
	WidgetsValues json.RawMessage `json:"widgets_values"`
}

func rewriteEditorGraph(graphJSON []byte, staged map[string]string) ([]byte, error) {
	var doc struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(graphJSON, &raw); err != nil {
		return nil, fmt.Errorf("parsing editor graph: %w", err)
	}
	nodesRaw, ok := raw["nodes"]
	if !ok {
		return graphJSON, nil
	}
	if err := json.Unmarshal(nodesRaw, &doc.Nodes); err != nil {
		return nil, fmt.Errorf("parsing editor graph nodes: %w", err)
	}

	for i, nodeRaw := range doc.Nodes {
		var node editorNode
		if err := json.Unmarshal(nodeRaw, &node); err != nil {
			continue
		}
		field, ok := recognizedInputLoaders[node.Type]
		if !ok {
			continue
		}
		var values []interface{}
		if err := json.Unmarshal(node.WidgetsValues, &values); err != nil || len(values) == 0 {
			continue
		}
		current, ok := values[0].(string)
		if !ok {
			continue
		}
		materialized, found := staged[current]
		if !found {
			continue
		}
		values[0] = materialized

		var full map[string]json.RawMessage
		if err := json.Unmarshal(nodeRaw, &full); err != nil {
			return nil, fmt.Errorf("re-parsing node %v: %w", node.ID, err)
		}
		newValues, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("re-encoding widgets_values for node %v: %w", node.ID, err)
		}
		full["widgets_values"] = newValues
		newNode, err := json.Marshal(full)
		if err != nil {
			return nil, fmt.Errorf("re-encoding node %v: %w", node.ID, err)
		}
		doc.Nodes[i] = newNode
		_ = field // field names the logical input kind for readability only
	}

	newNodes, err := json.Marshal(doc.Nodes)
	if err != nil {
		return nil, fmt.Errorf("re-encoding editor graph nodes: %w", err)
	}
	raw["nodes"] = newNodes
	return json.Marshal(raw)
}
