package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const NodeResultTypeError = "error"

type NodeResultStatus string

const (
	NodeResultStatusPending NodeResultStatus = "pending"
)

// NodeResult is the output of one node. Type echoes the producing node type
// and selects how references into Content are resolved.
type NodeResult struct {
	Type    string           `json:"type"`
	Content any              `json:"content"`
	Status  NodeResultStatus `json:"status,omitempty"`

	// Input is the first upstream result that fed a condition node.
	Input *NodeResult `json:"input,omitempty"`
}

func NewNodeResult(nodeType NodeType, content any) NodeResult {
	return NodeResult{
		Type:    string(nodeType),
		Content: content,
	}
}

func NewErrorResult(message string) NodeResult {
	return NodeResult{
		Type:    NodeResultTypeError,
		Content: message,
	}
}

func (r NodeResult) IsError() bool {
	return r.Type == NodeResultTypeError
}

func (r NodeResult) IsPending() bool {
	return r.Status == NodeResultStatusPending
}

// ContentString renders Content the way downstream templates see it:
// strings verbatim, everything else JSON encoded.
func (r NodeResult) ContentString() string {
	return StringifyContent(r.Content)
}

func StringifyContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool, int, int32, int64, json.Number:
		return fmt.Sprint(v)
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprint(content)
	}

	return string(encoded)
}

// NodeOutputs is the per-run map of node id to result. It keeps insertion
// order so persisted snapshots read in execution order.
type NodeOutputs struct {
	order   []string
	results map[string]NodeResult
}

func NewNodeOutputs() *NodeOutputs {
	return &NodeOutputs{
		results: map[string]NodeResult{},
	}
}

func (o *NodeOutputs) Set(nodeID string, result NodeResult) {
	if o.results == nil {
		o.results = map[string]NodeResult{}
	}

	if _, ok := o.results[nodeID]; !ok {
		o.order = append(o.order, nodeID)
	}

	o.results[nodeID] = result
}

func (o *NodeOutputs) Get(nodeID string) (NodeResult, bool) {
	if o == nil {
		return NodeResult{}, false
	}

	result, ok := o.results[nodeID]

	return result, ok
}

func (o *NodeOutputs) Has(nodeID string) bool {
	_, ok := o.Get(nodeID)

	return ok
}

func (o *NodeOutputs) Keys() []string {
	if o == nil {
		return nil
	}

	keys := make([]string, len(o.order))
	copy(keys, o.order)

	return keys
}

func (o *NodeOutputs) Len() int {
	if o == nil {
		return 0
	}

	return len(o.order)
}

func (o *NodeOutputs) Clone() *NodeOutputs {
	clone := NewNodeOutputs()

	if o == nil {
		return clone
	}

	for _, key := range o.order {
		clone.Set(key, o.results[key])
	}

	return clone
}

// Contents maps node ids to their raw content, used as chained workflow input.
func (o *NodeOutputs) Contents() map[string]any {
	contents := make(map[string]any, o.Len())

	for _, key := range o.Keys() {
		contents[key] = o.results[key].Content
	}

	return contents
}

func (o *NodeOutputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		encodedResult, err := json.Marshal(o.results[key])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result of node %s: %w", key, err)
		}

		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedResult)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (o *NodeOutputs) UnmarshalJSON(data []byte) error {
	o.order = nil
	o.results = map[string]NodeResult{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("node outputs must be a JSON object")
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}

		key, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected node outputs key %v", token)
		}

		var result NodeResult
		if err := decoder.Decode(&result); err != nil {
			return fmt.Errorf("failed to decode result of node %s: %w", key, err)
		}

		o.Set(key, result)
	}

	_, err = decoder.Token()

	return err
}
