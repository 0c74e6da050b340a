package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeKind tags a Node.
type NodeKind int

const (
	KindScalar NodeKind = iota
	KindMap
	KindList
)

// Node is a generic decoded JSON value. Map fields are sorted by key so
// walks are deterministic.
type Node struct {
	Kind   NodeKind
	Fields []Field
	Items  []*Node
	Scalar interface{} // string, json.Number, bool or nil
}

// Field is a key of a map node.
type Field struct {
	Key   string
	Value *Node
}

// Get returns the value of key in a map node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMap {
		return nil, false
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String renders a scalar; containers render as compact placeholders.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindMap:
		return fmt.Sprintf("{%d keys}", len(n.Fields))
	case KindList:
		return fmt.Sprintf("[%d items]", len(n.Items))
	}
	switch v := n.Scalar.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// TypeName infers the parameter type of a value.
func (n *Node) TypeName() string {
	if n == nil {
		return "null"
	}
	switch n.Kind {
	case KindMap, KindList:
		return "object"
	}
	switch v := n.Scalar.(type) {
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := v.Int64(); err == nil && !strings.ContainsAny(string(v), ".eE") {
			return "integer"
		}
		return "float"
	default:
		return "null"
	}
}

// ParseTree decodes raw JSON into a Node tree.
func ParseTree(raw []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return Build(v), nil
}

// Build converts a decoded value (maps, slices, scalars) into a Node tree
// using an explicit work stack.
func Build(v interface{}) *Node {
	type work struct {
		src interface{}
		dst *Node
	}

	root := &Node{}
	stack := []work{{src: v, dst: root}}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t := w.src.(type) {
		case map[string]interface{}:
			w.dst.Kind = KindMap
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w.dst.Fields = make([]Field, len(keys))
			for i, k := range keys {
				child := &Node{}
				w.dst.Fields[i] = Field{Key: k, Value: child}
				stack = append(stack, work{src: t[k], dst: child})
			}
		case []interface{}:
			w.dst.Kind = KindList
			w.dst.Items = make([]*Node, len(t))
			for i, item := range t {
				child := &Node{}
				w.dst.Items[i] = child
				stack = append(stack, work{src: item, dst: child})
			}
		case float64:
			w.dst.Scalar = json.Number(fmt.Sprint(t))
		case int:
			w.dst.Scalar = json.Number(fmt.Sprint(t))
		case int64:
			w.dst.Scalar = json.Number(fmt.Sprint(t))
		default:
			w.dst.Scalar = t
		}
	}
	return root
}
