package coverage

import (
	"encoding/json"
	"strconv"
)

// Param is one event parameter.
type Param struct {
	Key   string
	Value *Node
}

// Event is an analytics event found inside a request body.
type Event struct {
	Name        string
	Params      []Param
	Path        string // location inside the body, e.g. "data[0]"
	LocalTimeMs int64
	SessionID   string
}

// ExtractEvents finds every map carrying an "event" key, in document order.
// The walk uses an explicit stack, so arbitrarily deep bodies are safe.
func ExtractEvents(root *Node) []Event {
	if root == nil {
		return nil
	}

	type frame struct {
		node *Node
		path string
	}

	var events []Event
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.node.Kind {
		case KindMap:
			if name, ok := f.node.Get("event"); ok {
				events = append(events, newEvent(f.node, name, f.path))
			}
			for i := len(f.node.Fields) - 1; i >= 0; i-- {
				field := f.node.Fields[i]
				p := field.Key
				if f.path != "" {
					p = f.path + "." + field.Key
				}
				stack = append(stack, frame{node: field.Value, path: p})
			}
		case KindList:
			for i := len(f.node.Items) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: f.node.Items[i], path: f.path + "[" + strconv.Itoa(i) + "]"})
			}
		}
	}
	return events
}

func newEvent(obj, name *Node, path string) Event {
	e := Event{Name: name.String(), Path: path}
	if e.Name == "" || e.Name == "null" {
		e.Name = "unknown"
	}

	if raw, ok := obj.Get("params"); ok {
		e.Params = params(raw)
	}
	if ts, ok := obj.Get("local_time_ms"); ok {
		if n, ok := ts.Scalar.(json.Number); ok {
			e.LocalTimeMs, _ = n.Int64()
		}
	}
	if sid, ok := obj.Get("session_id"); ok && sid.Kind == KindScalar && sid.Scalar != nil {
		e.SessionID = sid.String()
	}
	return e
}

// params accepts an object, or a string holding a JSON object; any other
// string is kept under "_raw".
func params(n *Node) []Param {
	switch n.Kind {
	case KindMap:
		out := make([]Param, len(n.Fields))
		for i, f := range n.Fields {
			out[i] = Param{Key: f.Key, Value: f.Value}
		}
		return out
	case KindScalar:
		s, ok := n.Scalar.(string)
		if !ok {
			return nil
		}
		if parsed, err := ParseTree([]byte(s)); err == nil && parsed.Kind == KindMap {
			return params(parsed)
		}
		return []Param{{Key: "_raw", Value: &Node{Scalar: s}}}
	}
	return nil
}
